// internal/form/renderer.go
//
// Forms subsystem: HTML renderer.
//
// Context
//   Given a parsed FormDef this file converts the definition into plain,
//   accessible HTML.  Rule attributes (required, minlength, maxlength,
//   pattern, min, max) are mirrored onto the inputs as client hints; the
//   server re-checks everything in validate.go.
//
//   Two security inputs are appended to every form:
//     •  `form_token` – the signed load-time token from token.go.
//     •  honeypot decoys – the fixed `website_url` input plus one randomly
//        named sibling.  Both are moved off-screen, removed from the tab
//        order, and hidden from assistive technology.
//
// Style
//   Output HTML carries no framework classes.  Each input gets
//   id="fld-{name}" and is wrapped in <div class="form-field">.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strconv"

	"github.com/yanizio/agrsite/internal/security"
)

// TokenField is the hidden input carrying the signed load-time token.
const TokenField = "form_token"

const decoyStyle = "position:absolute;left:-9999px;opacity:0;height:0;width:0;overflow:hidden"

// RenderOptions bundles optional parameters influencing HTML output.
type RenderOptions struct {
	Action  string            // form action; defaults to /forms/{id}
	Prefill map[string]string // initial values keyed by field name
	Errors  ValidationResult  // messages shown under each field
}

// Render returns the markup for fd with token embedded.
func Render(fd *FormDef, token string, opts RenderOptions) (template.HTML, error) {
	action := opts.Action
	if action == "" {
		action = "/forms/" + fd.ID
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<form class="site-form" id="form-%s" method="post" action="%s" novalidate>`+"\n",
		html.EscapeString(fd.ID), html.EscapeString(action))
	if fd.Title != "" {
		buf.WriteString(`<h3>` + html.EscapeString(fd.Title) + `</h3>` + "\n")
	}

	for i := range fd.Fields {
		if err := writeField(&buf, &fd.Fields[i], opts); err != nil {
			return "", err
		}
	}

	writeDecoy(&buf, security.HoneypotField)
	writeDecoy(&buf, security.GenerateHoneypotName())
	fmt.Fprintf(&buf, `<input type="hidden" name="%s" value="%s">`+"\n", TokenField, html.EscapeString(token))

	buf.WriteString(`<button type="submit">Submit</button>` + "\n")
	buf.WriteString(`</form>`)
	return template.HTML(buf.String()), nil
}

func writeDecoy(buf *bytes.Buffer, name string) {
	n := html.EscapeString(name)
	fmt.Fprintf(buf, `<input type="text" name="%s" value="" style="%s" tabindex="-1" autocomplete="off" aria-hidden="true">`+"\n",
		n, decoyStyle)
}

// writeField emits one field wrapped in <div class="form-field">.
func writeField(buf *bytes.Buffer, f *FieldDef, opts RenderOptions) error {
	val := opts.Prefill[f.Name]
	name := html.EscapeString(f.Name)
	idAttr := `id="fld-` + name + `"`
	nameAttr := `name="` + name + `"`

	buf.WriteString(`<div class="form-field">` + "\n")
	if f.Kind != KindCheckbox {
		buf.WriteString(`<label for="fld-` + name + `">` + html.EscapeString(f.Label) + `</label>` + "\n")
	}

	switch f.Kind {
	case KindText, KindEmail, KindPhone, KindPAN, KindNumber:
		buf.WriteString(`<input ` + idAttr + ` ` + nameAttr + ` type="` + inputType(f.Kind) + `"`)
		writeCommonAttrs(buf, f)
		if f.Kind == KindNumber {
			if f.Min != nil {
				buf.WriteString(` min="` + fmtNum(*f.Min) + `"`)
			}
			if f.Max != nil {
				buf.WriteString(` max="` + fmtNum(*f.Max) + `"`)
			}
		}
		if val != "" {
			buf.WriteString(` value="` + html.EscapeString(val) + `"`)
		}
		buf.WriteString(`>` + "\n")

	case KindTextarea:
		buf.WriteString(`<textarea ` + idAttr + ` ` + nameAttr)
		writeCommonAttrs(buf, f)
		buf.WriteString(`>` + html.EscapeString(val) + `</textarea>` + "\n")

	case KindSelect:
		buf.WriteString(`<select ` + idAttr + ` ` + nameAttr)
		if f.Required {
			buf.WriteString(` required`)
		}
		buf.WriteString(`>` + "\n")
		buf.WriteString(`<option value="">Select…</option>` + "\n")
		for _, o := range f.Options {
			sel := ""
			if val == o.ID {
				sel = ` selected`
			}
			buf.WriteString(`<option value="` + html.EscapeString(o.ID) + `"` + sel + `>` + html.EscapeString(o.Label) + `</option>` + "\n")
		}
		buf.WriteString(`</select>` + "\n")

	case KindMultiSelect:
		buf.WriteString(`<fieldset ` + idAttr + `>` + "\n")
		for i, o := range f.Options {
			optID := fmt.Sprintf("fld-%s-%d", name, i)
			buf.WriteString(`<div class="checkbox-option">` + "\n")
			buf.WriteString(`<input id="` + optID + `" ` + nameAttr + ` type="checkbox" value="` + html.EscapeString(o.ID) + `">` + "\n")
			buf.WriteString(`<label for="` + optID + `">` + html.EscapeString(o.Label) + `</label>` + "\n")
			buf.WriteString(`</div>` + "\n")
		}
		buf.WriteString(`</fieldset>` + "\n")

	case KindCheckbox:
		checked := ""
		if isChecked(val) {
			checked = ` checked`
		}
		buf.WriteString(`<input ` + idAttr + ` ` + nameAttr + ` type="checkbox" value="true"` + checked)
		if f.Required {
			buf.WriteString(` required`)
		}
		buf.WriteString(`>` + "\n")
		buf.WriteString(`<label for="fld-` + name + `">` + html.EscapeString(f.Label) + `</label>` + "\n")

	default:
		return fmt.Errorf("writeField: unsupported field kind %q in form field %s", f.Kind, f.Name)
	}

	// Error slot, filled on server re-render or client-side.
	buf.WriteString(`<span class="error" aria-live="polite">` + html.EscapeString(opts.Errors[f.Name]) + `</span>` + "\n")
	buf.WriteString(`</div>` + "\n")
	return nil
}

func writeCommonAttrs(buf *bytes.Buffer, f *FieldDef) {
	if f.Placeholder != "" {
		buf.WriteString(` placeholder="` + html.EscapeString(f.Placeholder) + `"`)
	}
	if f.Required {
		buf.WriteString(` required`)
	}
	if f.MinLength > 0 {
		buf.WriteString(` minlength="` + strconv.Itoa(f.MinLength) + `"`)
	}
	if f.MaxLength > 0 {
		buf.WriteString(` maxlength="` + strconv.Itoa(f.MaxLength) + `"`)
	}
	if f.Pattern != "" {
		buf.WriteString(` pattern="` + html.EscapeString(f.Pattern) + `"`)
	}
}

func inputType(kind string) string {
	switch kind {
	case KindEmail:
		return "email"
	case KindPhone:
		return "tel"
	case KindNumber:
		return "number"
	}
	return "text"
}
