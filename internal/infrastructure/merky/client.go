// Package merky reads availability from and books pitches on the Merky FC HQ
// site by driving a headless Chromium through go-rod.
package merky

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

const (
	DefaultBaseURL     = "https://merkyfchq.com"
	bookingPath        = "/booking"
	loginPath          = "/account-sign-up-in"
	defaultWaitTimeout = 20 * time.Second
)

type Config struct {
	BaseURL  string
	Username string
	Password string
	Headless bool
	// Bin is the Chromium binary; empty lets rod find or download one.
	Bin string
	// WaitTimeout bounds each wait for an element to appear.
	WaitTimeout time.Duration
	Location    *time.Location
}

// Client implements booking.SlotProvider and booking.Executor. One browser is
// launched on first use and shared by every call; each call gets its own page.
type Client struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

var (
	_ booking.SlotProvider = (*Client)(nil)
	_ booking.Executor     = (*Client)(nil)
)

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Client{cfg: cfg, logger: logger.With().Str("component", "merky").Logger(), now: time.Now}
}

// HasCredentials reports whether bookings will be made while signed in.
func (c *Client) HasCredentials() bool { return c.cfg.Username != "" && c.cfg.Password != "" }

// FetchSlots lists the bookable slots shown for category.
func (c *Client) FetchSlots(ctx context.Context, category booking.Category) ([]booking.Slot, error) {
	page, done, err := c.open(ctx, c.cfg.BaseURL+bookingPath)
	if err != nil {
		return nil, err
	}
	defer done()
	log := c.logger.With().Str("category", string(category)).Logger()

	c.applyFilter(page, category, log)

	cards, err := page.Elements(".time-slot")
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	var out []booking.Slot
	for _, card := range cards {
		s, err := c.readCard(card, category)
		if err != nil {
			log.Debug().Err(err).Msg("skipping unreadable slot card")
			continue
		}
		out = append(out, s)
	}
	log.Debug().Int("cards", len(cards)).Int("slots", len(out)).Msg("slots scraped")
	return out, nil
}

// Execute books slot, signing in first when credentials are configured.
func (c *Client) Execute(ctx context.Context, slot booking.Slot) (booking.Confirmation, error) {
	session := uuid.NewString()
	log := c.logger.With().Str("session", session).Str("slot", slot.String()).Logger()

	page, done, err := c.open(ctx, c.cfg.BaseURL+bookingPath)
	if err != nil {
		return booking.Confirmation{}, err
	}
	defer done()

	if c.HasCredentials() {
		if err := c.login(page); err != nil {
			return booking.Confirmation{}, fmt.Errorf("sign in: %w", err)
		}
		if err := page.Navigate(c.cfg.BaseURL + bookingPath); err != nil {
			return booking.Confirmation{}, fmt.Errorf("open booking page: %w", err)
		}
		if err := page.WaitLoad(); err != nil {
			return booking.Confirmation{}, fmt.Errorf("load booking page: %w", err)
		}
	}
	c.applyFilter(page, slot.Category, log)

	card, err := c.findCard(page, slot)
	if err != nil {
		return booking.Confirmation{}, err
	}
	if err := card.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return booking.Confirmation{}, fmt.Errorf("select slot: %w", err)
	}
	for _, label := range []string{"Confirm", "Book"} {
		if err := clickButton(page, c.cfg.WaitTimeout, label); err != nil {
			return booking.Confirmation{}, err
		}
	}

	conf := booking.Confirmation{Status: "confirmed", Timestamp: c.now()}
	ref, err := readText(page, c.cfg.WaitTimeout, ".confirmation-number")
	if err != nil || ref == "" {
		// The booking went through; only the reference could not be read.
		conf.Ref = confirmationFallback(c.now())
		conf.Status = "pending_confirmation"
		log.Warn().Err(err).Str("ref", conf.Ref).Msg("no confirmation number shown, using generated reference")
		return conf, nil
	}
	conf.Ref = ref
	log.Info().Str("ref", ref).Msg("booking confirmed by site")
	return conf, nil
}

// Close shuts the shared browser down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Cleanup()
		c.launcher = nil
	}
	return err
}

func (c *Client) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}
	l := launcher.New().Headless(c.cfg.Headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("window-size", "1920,1080")
	if c.cfg.Bin != "" {
		l = l.Bin(c.cfg.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	c.launcher, c.browser = l, b
	c.logger.Info().Bool("headless", c.cfg.Headless).Msg("browser started")
	return b, nil
}

// open returns a loaded page bound to ctx and a func that closes it.
func (c *Client) open(ctx context.Context, url string) (*rod.Page, func(), error) {
	b, err := c.connect()
	if err != nil {
		return nil, nil, err
	}
	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", url, err)
	}
	done := func() { _ = page.Close() }
	if err := page.WaitLoad(); err != nil {
		done()
		return nil, nil, fmt.Errorf("load %s: %w", url, err)
	}
	return page, done, nil
}

func (c *Client) login(page *rod.Page) error {
	if err := page.Navigate(c.cfg.BaseURL + loginPath); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return err
	}
	p := page.Timeout(c.cfg.WaitTimeout)
	user, err := p.Element("input[name=username]")
	if err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	if err := user.Input(c.cfg.Username); err != nil {
		return err
	}
	pass, err := p.Element("input[name=password]")
	if err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := pass.Input(c.cfg.Password); err != nil {
		return err
	}
	if err := clickButton(page, c.cfg.WaitTimeout, "Sign In"); err != nil {
		return err
	}
	return page.WaitLoad()
}

// applyFilter narrows the listing to category. A missing filter is logged and
// the unfiltered listing is used.
func (c *Client) applyFilter(page *rod.Page, category booking.Category, log zerolog.Logger) {
	h, err := page.Timeout(c.cfg.WaitTimeout).ElementR("h4", "/"+category.Label()+"/i")
	if err != nil {
		log.Warn().Err(err).Msg("could not apply pitch filter")
		return
	}
	if err := h.Click(proto.InputMouseButtonLeft, 1); err != nil {
		log.Warn().Err(err).Msg("could not apply pitch filter")
		return
	}
	if err := page.WaitStable(time.Second); err != nil {
		log.Debug().Err(err).Msg("page did not settle after filtering")
	}
}

func (c *Client) readCard(card *rod.Element, category booking.Category) (booking.Slot, error) {
	var texts [3]string
	for i, sel := range []string{".slot-date", ".slot-time", ".slot-price"} {
		el, err := card.Element(sel)
		if err != nil {
			return booking.Slot{}, fmt.Errorf("%s: %w", sel, err)
		}
		if texts[i], err = el.Text(); err != nil {
			return booking.Slot{}, fmt.Errorf("%s text: %w", sel, err)
		}
	}
	return parseSlot(texts[0], texts[1], texts[2], category, c.cfg.Location)
}

var errSlotNotListed = errors.New("slot not listed")

func (c *Client) findCard(page *rod.Page, want booking.Slot) (*rod.Element, error) {
	cards, err := page.Elements(".time-slot")
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	for _, card := range cards {
		s, err := c.readCard(card, want.Category)
		if err != nil {
			continue
		}
		if s.Key() == want.Key() {
			return card, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", want, errSlotNotListed)
}

func clickButton(page *rod.Page, wait time.Duration, label string) error {
	btn, err := page.Timeout(wait).ElementR("button", label)
	if err != nil {
		return fmt.Errorf("%q button: %w", label, err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", label, err)
	}
	return nil
}

func readText(page *rod.Page, wait time.Duration, sel string) (string, error) {
	el, err := page.Timeout(wait).Element(sel)
	if err != nil {
		return "", err
	}
	t, err := el.Text()
	return strings.TrimSpace(t), err
}
