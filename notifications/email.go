package notifications

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"assetrewards/storage"
)

// Bound on one whole SMTP exchange, from dial to QUIT
const SMTP_TIMEOUT = 30 * time.Second

type NotifyEmail struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	SMTPHost string   `json:"smtphost"`
	SMTPPort int      `json:"smtpport"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Enabled  bool     `json:"enabled"`

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	storage  *storage.Storage
}

func (n *NotificationHandler) NewEmail(config []byte, saveConfig bool) (*NotifyEmail, error) {

	ne := &NotifyEmail{
		Enabled:  true,
		SMTPPort: 587,
		sendMail: sendMailWithin(SMTP_TIMEOUT),
		storage:  n.storage,
	}

	if config != nil {
		if err := json.Unmarshal(config, ne); err != nil {
			return nil, errors.Wrap(err, "Unable to unmarshal email config")
		}
	}

	if ne.Enabled && (ne.SMTPHost == "" || len(ne.To) == 0) {
		return nil, errors.New("Email requires an SMTP host and at least one recipient")
	}

	if ne.From == "" {
		ne.From = ne.Username
	}

	if saveConfig {
		if err := ne.SaveConfig(); err != nil {
			return nil, err
		}
	}

	return ne, nil
}

func (n *NotifyEmail) IsEnabled() bool {
	return n.Enabled
}

func (n *NotifyEmail) Send(msg string) error {

	var auth smtp.Auth
	if n.Username != "" {
		auth = smtp.PlainAuth("", n.Username, n.Password, n.SMTPHost)
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: assetrewards notification\r\n\r\n%s\r\n",
		n.From, strings.Join(n.To, ", "), msg)

	addr := fmt.Sprintf("%s:%d", n.SMTPHost, n.SMTPPort)

	if err := n.sendMail(addr, auth, n.From, n.To, []byte(body)); err != nil {
		return errors.Wrap(err, "Unable to send email")
	}

	log.WithField("MSG", msg).Info("Sent Email Notification")

	return nil
}

func (n *NotifyEmail) SaveConfig() error {

	config, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal email config")
	}

	if err := n.storage.SaveNotifiersConfig(EMAIL, config); err != nil {
		return errors.Wrap(err, "Unable to save email config")
	}

	return nil
}

// sendMailWithin returns a smtp.SendMail equivalent whose connection carries
// a deadline, so a server that accepts and then stalls cannot hang the sender
func sendMailWithin(timeout time.Duration) func(string, smtp.Auth, string, []string, []byte) error {
	return func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return err
		}

		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return err
		}

		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close()
			return err
		}

		c, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return err
		}
		defer c.Close()

		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return err
			}
		}

		if a != nil {
			if ok, _ := c.Extension("AUTH"); !ok {
				return errors.New("SMTP server does not support AUTH")
			}
			if err := c.Auth(a); err != nil {
				return err
			}
		}

		if err := c.Mail(from); err != nil {
			return err
		}

		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}

		w, err := c.Data()
		if err != nil {
			return err
		}

		if _, err := w.Write(msg); err != nil {
			return err
		}

		if err := w.Close(); err != nil {
			return err
		}

		return c.Quit()
	}
}
