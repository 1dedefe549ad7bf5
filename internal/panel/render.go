package panel

import (
	"bytes"
	"html/template"
	"sort"

	"go.uber.org/zap"

	"github.com/plsfix/plsfix/pkg/models"
)

// designFields is the fixed set of style properties the Design tab exposes.
var designFields = []struct {
	Property string
	Label    string
}{
	{"fontSize", "Font Size"},
	{"fontWeight", "Font Weight"},
	{"color", "Color"},
	{"textAlign", "Text Align"},
	{"paddingTop", "Padding Top"},
	{"paddingRight", "Padding Right"},
	{"paddingBottom", "Padding Bottom"},
	{"paddingLeft", "Padding Left"},
}

type styleRow struct {
	Property string
	Original string
	Modified string
}

type changeView struct {
	ID           string
	Type         models.ChangeType
	ElementTag   string
	OriginalText string
	ModifiedText string
	StyleRows    []styleRow
}

type fieldView struct {
	Property string
	Label    string
	Value    string
}

type view struct {
	Open        bool
	Tab         Tab
	Selected    *models.ElementInfo
	Fields      []fieldView
	Changes     []changeView
	ChangeCount int
}

var panelTmpl = template.Must(template.New("panel").Parse(panelHTML))

const panelHTML = `<div class="plsfix-panel{{if not .Open}} closed{{end}}">
  <div class="plsfix-panel-header">
    <div class="plsfix-panel-logo"><span>plsfix</span></div>
    <button class="plsfix-panel-close" data-plsfix-action="close">&times;</button>
  </div>
  <div class="plsfix-panel-tabs">
    <button class="plsfix-panel-tab{{if eq .Tab "design"}} active{{end}}" data-plsfix-tab="design">Design</button>
    <button class="plsfix-panel-tab{{if eq .Tab "changes"}} active{{end}}" data-plsfix-tab="changes">Changes{{if .ChangeCount}} ({{.ChangeCount}}){{end}}</button>
    <button class="plsfix-panel-tab{{if eq .Tab "pr"}} active{{end}}" data-plsfix-tab="pr">PR</button>
    <button class="plsfix-panel-tab{{if eq .Tab "ai"}} active{{end}}" data-plsfix-tab="ai">AI</button>
  </div>
  <div class="plsfix-panel-content">
{{- if eq .Tab "design"}}
{{- if .Selected}}
    <div class="plsfix-section">
      <div class="plsfix-section-title">Selected Element</div>
      <span class="plsfix-change-element">&lt;{{.Selected.TagName}}&gt;</span>
    </div>
    <div class="plsfix-section">
      <div class="plsfix-section-title">Text</div>
      <textarea class="plsfix-input" data-plsfix-field="text" placeholder="Edit text content...">{{.Selected.TextContent}}</textarea>
    </div>
    <div class="plsfix-section">
      <div class="plsfix-section-title">Styles</div>
      <div class="plsfix-prop-grid">
{{- range .Fields}}
        <div class="plsfix-prop-item">
          <label class="plsfix-prop-label">{{.Label}}</label>
          <input class="plsfix-prop-input" data-plsfix-prop="{{.Property}}" value="{{.Value}}">
        </div>
{{- end}}
      </div>
    </div>
{{- else}}
    <div class="plsfix-empty">
      <p class="plsfix-empty-text">Click on any element on the page to select it and start editing</p>
    </div>
{{- end}}
{{- else if eq .Tab "changes"}}
{{- if .Changes}}
{{- range .Changes}}
    <div class="plsfix-change" data-plsfix-change-id="{{.ID}}">
      <div class="plsfix-change-header">
        <span class="plsfix-change-type {{.Type}}">{{.Type}}</span>
        <span class="plsfix-change-element">&lt;{{.ElementTag}}&gt;</span>
      </div>
{{- if eq .Type "text"}}
      <div class="plsfix-change-diff"><del>{{.OriginalText}}</del> <ins>{{.ModifiedText}}</ins></div>
{{- else}}
      <ul class="plsfix-change-styles">
{{- range .StyleRows}}
        <li><code>{{.Property}}</code>: <del>{{.Original}}</del> <ins>{{.Modified}}</ins></li>
{{- end}}
      </ul>
{{- end}}
    </div>
{{- end}}
{{- else}}
    <div class="plsfix-empty">
      <p class="plsfix-empty-text">No changes yet. Start editing elements to see your changes here.</p>
    </div>
{{- end}}
{{- else if eq .Tab "pr"}}
    <div class="plsfix-empty">
      <p class="plsfix-empty-text">Connect a GitHub repository to create pull requests with your changes.</p>
    </div>
{{- else}}
    <div class="plsfix-empty">
      <p class="plsfix-empty-text">AI-powered code review and suggestions coming soon.</p>
    </div>
{{- end}}
  </div>
</div>
<button class="plsfix-toggle{{if not .Open}} closed{{end}}" data-plsfix-action="toggle">{{if .Open}}&rarr;{{else}}&larr;{{end}}</button>`

// Render produces the panel markup for the current state.
func (p *Panel) Render() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderLocked()
}

func (p *Panel) renderLocked() string {
	v := view{
		Open:        p.open,
		Tab:         p.tab,
		Selected:    p.selected,
		ChangeCount: len(p.changes),
	}

	if p.selected != nil {
		for _, f := range designFields {
			v.Fields = append(v.Fields, fieldView{
				Property: f.Property,
				Label:    f.Label,
				Value:    p.selected.ComputedStyles[f.Property],
			})
		}
	}

	for _, ch := range p.changes {
		v.Changes = append(v.Changes, newChangeView(ch))
	}

	var buf bytes.Buffer
	if err := panelTmpl.Execute(&buf, v); err != nil {
		p.log.Error("panel render failed", zap.Error(err))
		return ""
	}
	return buf.String()
}

func newChangeView(ch models.Change) changeView {
	cv := changeView{
		ID:         ch.ID,
		Type:       ch.Type,
		ElementTag: ch.ElementTag,
	}
	if ch.Original.TextContent != nil {
		cv.OriginalText = *ch.Original.TextContent
	}
	if ch.Modified.TextContent != nil {
		cv.ModifiedText = *ch.Modified.TextContent
	}
	if len(ch.Modified.Styles) > 0 {
		props := make([]string, 0, len(ch.Modified.Styles))
		for prop := range ch.Modified.Styles {
			props = append(props, prop)
		}
		sort.Strings(props)
		for _, prop := range props {
			cv.StyleRows = append(cv.StyleRows, styleRow{
				Property: prop,
				Original: ch.Original.Styles[prop],
				Modified: ch.Modified.Styles[prop],
			})
		}
	}
	return cv
}
