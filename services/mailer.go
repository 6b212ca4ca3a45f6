package services

import (
	"fmt"
	"strconv"

	"gopkg.in/gomail.v2"

	"userdeck/common"
)

// Outbound mail. Disabled unless USERDECK_EMAILS_ENABLED is set; send
// failures are logged and never fail the calling request.

func EmailsEnabled() bool {
	return common.EnvBool("USERDECK_EMAILS_ENABLED", "false")
}

func smtpDialer() (*gomail.Dialer, error) {
	host := common.Env("USERDECK_SMTP_HOST", "")
	if host == "" {
		return nil, fmt.Errorf("USERDECK_SMTP_HOST not set")
	}
	port, err := strconv.Atoi(common.Env("USERDECK_SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("bad USERDECK_SMTP_PORT: %w", err)
	}
	user := common.Env("USERDECK_SMTP_USER", "")
	pass, err := common.EnvOrFile("USERDECK_SMTP_PASS", "USERDECK_SMTP_PASS_FILE")
	if err != nil {
		return nil, err
	}
	return gomail.NewDialer(host, port, user, pass), nil
}

func sendMail(to, subject, body string) {
	d, err := smtpDialer()
	if err != nil {
		common.ErrorLog("mail: not configured: %v", err)
		return
	}
	m := gomail.NewMessage()
	m.SetHeader("From", common.Env("USERDECK_EMAILS_FROM", "noreply@localhost"))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if err := d.DialAndSend(m); err != nil {
		common.ErrorLog("mail: send to %s failed: %v", to, err)
		return
	}
	common.InfoLog("mail: sent %q to %s", subject, to)
}

// SendNewAccountEmail notifies a freshly created account. Fire and forget.
func SendNewAccountEmail(email, fullName string) {
	if !EmailsEnabled() {
		return
	}
	name := fullName
	if name == "" {
		name = email
	}
	project := common.Env("USERDECK_PROJECT_NAME", "userdeck")
	body := fmt.Sprintf(
		"Hello %s,\n\nAn account was created for you on %s.\nYou can sign in with this email address.\n",
		name, project)
	go sendMail(email, fmt.Sprintf("%s - new account", project), body)
}

// SendResetPasswordEmail delivers a password reset token. Fire and forget.
func SendResetPasswordEmail(email, token string) {
	if !EmailsEnabled() {
		common.WarnLog("mail: emails disabled, dropping reset token for %s", email)
		return
	}
	project := common.Env("USERDECK_PROJECT_NAME", "userdeck")
	link := common.Env("USERDECK_UI_ORIGIN", "")
	body := fmt.Sprintf("Password recovery for %s.\n\nReset token: %s\n", project, token)
	if link != "" {
		body += fmt.Sprintf("\nOr open: %s/reset-password?token=%s\n", link, token)
	}
	go sendMail(email, fmt.Sprintf("%s - password recovery", project), body)
}
