package mail

import (
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
)

// InstructionItem is one payment line in a quarterly instruction email.
// All values arrive pre-formatted.
type InstructionItem struct {
	Label   string
	DueDate string
	Amount  string
}

// InstructionData is the input for the quarterly instruction email.
type InstructionData struct {
	RecipientName string
	TaxYear       int
	Quarter       int
	Items         []InstructionItem
	PortalURL     string
}

var instructionHTML = template.Must(template.New("instructions").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1a1a1a; max-width: 600px; margin: 0 auto;">
  <p>Hi {{.RecipientName}},</p>
  <p>Your Q{{.Quarter}} {{.TaxYear}} estimated tax payments are due. Here is what to pay:</p>
  <table style="width: 100%; border-collapse: collapse;">
    <tr>
      <th style="text-align: left; padding: 8px; border-bottom: 2px solid #ddd;">Payment</th>
      <th style="text-align: left; padding: 8px; border-bottom: 2px solid #ddd;">Due</th>
      <th style="text-align: right; padding: 8px; border-bottom: 2px solid #ddd;">Amount</th>
    </tr>
{{- range .Items}}
    <tr>
      <td style="padding: 8px; border-bottom: 1px solid #eee;">{{.Label}}</td>
      <td style="padding: 8px; border-bottom: 1px solid #eee;">{{.DueDate}}</td>
      <td style="text-align: right; padding: 8px; border-bottom: 1px solid #eee;">{{.Amount}}</td>
    </tr>
{{- end}}
  </table>
{{- if .PortalURL}}
  <p style="margin: 24px 0;">
    <a href="{{.PortalURL}}" style="background: #2563eb; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 6px;">View your payment plan</a>
  </p>
  <p style="color: #666; font-size: 13px;">Once you have made a payment, use the link above to mark it as paid.</p>
{{- end}}
  <p>Thank you.</p>
</body>
</html>
`))

var instructionText = texttemplate.Must(texttemplate.New("instructions").Parse(`Hi {{.RecipientName}},

Your Q{{.Quarter}} {{.TaxYear}} estimated tax payments are due. Here is what to pay:

{{range .Items}}- {{.Label}}: {{.Amount}} due {{.DueDate}}
{{end}}{{- if .PortalURL}}
View your payment plan and mark payments as paid:
{{.PortalURL}}
{{end}}
Thank you.
`))

// BuildQuarterlyInstructions renders the quarterly instruction email.
func BuildQuarterlyInstructions(data *InstructionData) (*Message, error) {
	if data.RecipientName == "" {
		data.RecipientName = "there"
	}
	if len(data.Items) == 0 {
		return nil, fmt.Errorf("instruction email has no payment items")
	}

	var html strings.Builder
	if err := instructionHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML body: %w", err)
	}

	var text strings.Builder
	if err := instructionText.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}

	return &Message{
		Subject: fmt.Sprintf("Q%d %d Estimated Tax Payment Instructions", data.Quarter, data.TaxYear),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
