package aiservice

import (
	"fmt"

	"github.com/osteele/liquid"
)

// TemplateKind selects one of the five outreach email layouts.
type TemplateKind string

const (
	TemplateColdOutreach    TemplateKind = "ColdOutreach"
	TemplateReferral        TemplateKind = "Referral"
	TemplateProductInterest TemplateKind = "ProductInterest"
	TemplateNetworking      TemplateKind = "Networking"
	TemplateFollowUp        TemplateKind = "FollowUp"
)

// liquidLayouts holds one Liquid layout per template kind. The LLM
// authors {{ opening }} and {{ closing }}; the layout supplies the
// sender-profile-driven signature block, keeping that part consistent
// regardless of what the model produces.
var liquidLayouts = map[TemplateKind]string{
	TemplateColdOutreach: `{{ opening }}

{{ closing }}

Best,
{{ sender_name }}
{{ sender_role }}{% if sender_links %}
{{ sender_links }}{% endif %}`,
	TemplateReferral: `{{ opening }}

{{ closing }}

Best,
{{ sender_name }}`,
	TemplateProductInterest: `{{ opening }}

{{ closing }}

Best,
{{ sender_name }}
{{ sender_role }}`,
	TemplateNetworking: `{{ opening }}

{{ closing }}

Best,
{{ sender_name }}`,
	TemplateFollowUp: `{{ opening }}

{{ closing }}

Best,
{{ sender_name }}`,
}

var liquidEngine = liquid.NewEngine()

// renderLayout slots the LLM-authored opening/closing into the template
// kind's Liquid layout along with sender-profile fields.
func renderLayout(kind TemplateKind, opening, closing, senderName, senderRole, senderLinks string) (string, error) {
	tmplSrc, ok := liquidLayouts[kind]
	if !ok {
		tmplSrc = liquidLayouts[TemplateColdOutreach]
	}
	tmpl, err := liquidEngine.ParseTemplate([]byte(tmplSrc))
	if err != nil {
		return "", fmt.Errorf("aiservice: parse liquid layout: %w", err)
	}

	rendered, err := tmpl.Render(map[string]any{
		"opening":      opening,
		"closing":      closing,
		"sender_name":  senderName,
		"sender_role":  senderRole,
		"sender_links": senderLinks,
	})
	if err != nil {
		return "", fmt.Errorf("aiservice: render liquid layout: %w", err)
	}
	return string(rendered), nil
}
