package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

// CustomerReplyData fills the email sent to a customer when the business answers.
type CustomerReplyData struct {
	BusinessName string
	Message      string
	ReplyURL     string
	SiteURL      string
}

// OwnerReplyData fills the email sent to the owner when the customer answers.
type OwnerReplyData struct {
	BusinessName string
	CustomerName string
	Message      string
	DashboardURL string
	SiteURL      string
}

const layoutOpen = `<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 40px 20px;">
  <div style="text-align: center; margin-bottom: 32px;">
    <h1 style="color: #4f46e5; font-size: 28px; margin: 0;">TestimonioYa</h1>
  </div>`

const quoteBlock = `<div style="background: #f3f4f6; border-radius: 12px; padding: 24px; margin: 24px 0; border-left: 4px solid #4f46e5;">
    <p style="color: #374151; margin: 0; line-height: 1.6; white-space: pre-wrap;">{{.Message}}</p>
  </div>`

const buttonStyle = `background: #4f46e5; color: white; padding: 14px 32px; border-radius: 12px; text-decoration: none; font-weight: 600; font-size: 16px; display: inline-block;`

var customerReplyTmpl = template.Must(template.New("customer_reply").Parse(layoutOpen + `
  <h2 style="color: #111827; font-size: 24px;">Respuesta de {{.BusinessName}}</h2>
  <p style="color: #4b5563; font-size: 16px; line-height: 1.6;">{{.BusinessName}} ha respondido a tu feedback:</p>
  ` + quoteBlock + `
  <div style="text-align: center; margin: 32px 0;">
    <a href="{{.ReplyURL}}" style="` + buttonStyle + `">Responder →</a>
  </div>
  <p style="color: #9ca3af; font-size: 13px; text-align: center;">Tu opinión nos ayuda a mejorar. Gracias por tu tiempo.</p>
  <div style="border-top: 1px solid #e5e7eb; margin-top: 40px; padding-top: 24px; text-align: center;">
    <p style="color: #d1d5db; font-size: 11px; margin: 0;">Enviado por {{.BusinessName}} a través de <a href="{{.SiteURL}}" style="color: #9ca3af;">TestimonioYa</a></p>
  </div>
</div>`))

var ownerReplyTmpl = template.Must(template.New("owner_reply").Parse(layoutOpen + `
  <h2 style="color: #111827; font-size: 24px;">💬 Respuesta del cliente</h2>
  <p style="color: #4b5563; font-size: 16px; line-height: 1.6;">{{.CustomerName}} ha respondido a tu mensaje:</p>
  ` + quoteBlock + `
  <div style="text-align: center; margin: 32px 0;">
    <a href="{{.DashboardURL}}" style="` + buttonStyle + `">Ver caso →</a>
  </div>
  <div style="border-top: 1px solid #e5e7eb; margin-top: 40px; padding-top: 24px; text-align: center;">
    <p style="color: #d1d5db; font-size: 11px; margin: 0;">{{.BusinessName}} · <a href="{{.SiteURL}}" style="color: #9ca3af;">TestimonioYa</a></p>
  </div>
</div>`))

// CustomerReplyEmail renders the email for a business reply.
func CustomerReplyEmail(to string, data CustomerReplyData) (Email, error) {
	var buf bytes.Buffer
	if err := customerReplyTmpl.Execute(&buf, data); err != nil {
		return Email{}, fmt.Errorf("render customer reply email: %w", err)
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Respuesta de %s a tu feedback", data.BusinessName),
		HTML:    buf.String(),
	}, nil
}

// OwnerReplyEmail renders the email for a customer reply.
func OwnerReplyEmail(to string, data OwnerReplyData) (Email, error) {
	if data.CustomerName == "" {
		data.CustomerName = "Un cliente"
	}
	var buf bytes.Buffer
	if err := ownerReplyTmpl.Execute(&buf, data); err != nil {
		return Email{}, fmt.Errorf("render owner reply email: %w", err)
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("💬 Respuesta de %s en caso de recuperación", data.CustomerName),
		HTML:    buf.String(),
	}, nil
}
