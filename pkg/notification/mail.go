package notification

import (
	"fmt"
	"net/smtp"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/logger"
)

// Mail sends engine notifications over SMTP, for deployments that do not
// want a chat bot listening
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
	log               logger.Logger
}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	To                string
	From              string
	Password          string
	Log               logger.Logger
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams) Mail {
	return Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		log:               params.Log,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
	}
}

// Notify sends an email notification with the given text
func (m Mail) Notify(text string) {
	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	message := fmt.Sprintf(
		`To: "User" <%s>
From: "Tideshift" <%s>
%s`,
		m.to,
		m.from,
		text,
	)

	err := smtp.SendMail(
		serverAddress,
		m.auth,
		m.from,
		[]string{m.to},
		[]byte(message),
	)

	if err != nil {
		m.log.Errorf("notification/mail: failed to send email: %v", err)
	}
}

// OnTrade sends a fill notification
func (m Mail) OnTrade(trade core.TradeRecord) {
	title := fmt.Sprintf("%s %s - %s", sideEmoji(trade.Side), trade.Side, trade.Symbol)
	m.Notify(fmt.Sprintf("Subject: %s\n%s", title, formatTradeEvent(trade)))
}

// OnError sends an error notification
func (m Mail) OnError(err error) {
	m.Notify(fmt.Sprintf("Subject: 🛑 ERROR\nError %s", err))
}
