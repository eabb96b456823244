package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/mail"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/retry"
)

const me = "me"

// Fallbacks rendered when a message lacks the corresponding field.
const (
	unknownSender = "Unknown sender"
	noSubject     = "No subject"
	noPreview     = "No preview available"
)

// Client wraps the Gmail Users service
type Client struct {
	svc        *gmail.UsersService
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	retryDelay time.Duration
	endpoint   string
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records every API call.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetryDelay overrides the pause before retrying a read.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithEndpoint points the client at a different API root.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// NewClient creates a Gmail client that talks to the API through
// httpClient, which must already carry the user's credential.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	c := &Client{
		logger:     slog.Default(),
		retryDelay: retry.DefaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	apiOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		apiOpts = append(apiOpts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmail.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	c.svc = svc.Users
	c.logger = logging.WithService(c.logger, instrumentation.ServiceGmail)
	return c, nil
}

// SearchMessages finds the most relevant message for query (Gmail search
// syntax) and summarizes it.
func (c *Client) SearchMessages(ctx context.Context, query string) google.Result {
	list, err := retry.Do(ctx, "gmail.list", func() (*gmail.ListMessagesResponse, error) {
		return google.Call(ctx, c.metrics, instrumentation.ServiceGmail, instrumentation.OperationList,
			func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
				return c.svc.Messages.List(me).Q(query).MaxResults(1).Context(ctx).Do()
			})
	}, retry.WithDelay(c.retryDelay))
	if err != nil {
		c.logger.Warn("Message search failed", logging.Operation("gmail.list"), logging.Err(err))
		return google.Failed(fmt.Sprintf("An error occurred while searching emails: %v", err), err)
	}
	if len(list.Messages) == 0 {
		return google.Succeeded("No emails found matching the query.")
	}

	id := list.Messages[0].Id
	msg, err := retry.Do(ctx, "gmail.get", func() (*gmail.Message, error) {
		return google.Call(ctx, c.metrics, instrumentation.ServiceGmail, instrumentation.OperationGet,
			func(ctx context.Context) (*gmail.Message, error) {
				return c.svc.Messages.Get(me, id).
					Format("metadata").
					MetadataHeaders("From", "Subject").
					Context(ctx).
					Do()
			})
	}, retry.WithDelay(c.retryDelay))
	if err != nil {
		c.logger.Warn("Message fetch failed", logging.Operation("gmail.get"), logging.Err(err))
		return google.Failed(fmt.Sprintf("An error occurred while searching emails: %v", err), err)
	}

	return google.Succeeded(formatSummary(msg))
}

func formatSummary(msg *gmail.Message) string {
	from := orDefault(HeaderValue(msg, "From"), unknownSender)
	subject := orDefault(HeaderValue(msg, "Subject"), noSubject)
	preview := orDefault(msg.Snippet, noPreview)
	return fmt.Sprintf("Latest email matching the query:\nFrom: %s\nSubject: %s\nPreview: %s", from, subject, preview)
}

// SendMessage sends a plain-text email from the authenticated user.
func (c *Client) SendMessage(ctx context.Context, to, subject, body string) google.Result {
	if err := validateMessage(to, subject, body); err != nil {
		return google.Failed(fmt.Sprintf("An error occurred while sending the email: %v", err), err)
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildMessage(to, subject, body)))

	sent, err := google.Call(ctx, c.metrics, instrumentation.ServiceGmail, instrumentation.OperationSend,
		func(ctx context.Context) (*gmail.Message, error) {
			return c.svc.Messages.Send(me, &gmail.Message{Raw: raw}).Context(ctx).Do()
		})
	if err != nil {
		err = retry.Classify("gmail.send", err)
		c.logger.Warn("Message send failed",
			logging.Operation("gmail.send"),
			logging.Recipient(to),
			logging.Err(err))
		if retry.IsTransient(err) {
			return google.Failed(fmt.Sprintf("An error occurred while sending the email: delivery status unknown, the message may have been sent (%v)", err), err)
		}
		return google.Failed(fmt.Sprintf("An error occurred while sending the email: %v", err), err)
	}

	c.logger.Info("Message sent", logging.Operation("gmail.send"), logging.Recipient(to))
	return google.Succeeded(fmt.Sprintf("Email sent successfully. Message ID: %s", sent.Id))
}

func validateMessage(to, subject, body string) error {
	switch {
	case strings.TrimSpace(to) == "":
		return errors.New("recipient is required")
	case strings.TrimSpace(subject) == "":
		return errors.New("subject is required")
	case strings.TrimSpace(body) == "":
		return errors.New("body is required")
	case strings.ContainsAny(to, "\r\n"):
		return errors.New("recipient must not contain line breaks")
	case strings.ContainsAny(subject, "\r\n"):
		return errors.New("subject must not contain line breaks")
	}
	if _, err := mail.ParseAddressList(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	return nil
}

// buildMessage renders an RFC 2822 plain-text message.
func buildMessage(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + encodeRFC2047(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// encodeRFC2047 encodes a string for use in email headers according to RFC 2047.
// This is necessary for non-ASCII characters (like German umlauts) in subjects
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// HeaderValue returns the first header of m named header, compared
// case-insensitively, or "".
func HeaderValue(m *gmail.Message, header string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
