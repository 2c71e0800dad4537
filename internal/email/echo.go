package email

import (
	"github.com/dropDatabas3/hellolink/internal/observability/logger"
	"github.com/dropDatabas3/hellolink/internal/util"
)

// EchoSender loggea el link y el código en vez de enviar. Para entornos
// de desarrollo sin SMTP (email.debug_echo_links: true).
type EchoSender struct{}

func (EchoSender) Send(msg MagicLinkMessage) error {
	logger.Named("email").Info("debug echo (no SMTP configured)",
		logger.String("to", util.MaskEmail(msg.To)),
		logger.String("magic_link", msg.MagicLink),
		logger.String("code", msg.Code),
	)
	return nil
}
