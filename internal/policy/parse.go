// Package policy loads time-gate policy documents and turns them into
// immutable model.Policy snapshots.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/timegate/internal/idgen"
	"github.com/alfredjeanlab/timegate/internal/model"
)

const (
	// DefaultHookTimeout applies when [hooks] omits timeout_seconds.
	DefaultHookTimeout = 30 * time.Second
	// MaxHookTimeout caps timeout_seconds.
	MaxHookTimeout = 300 * time.Second
)

// DefaultWarningMinutes is used when warning_minutes is absent.
var DefaultWarningMinutes = []int{10, 5, 1}

type document struct {
	Timezone         string      `toml:"timezone"`
	DefaultPolicy    string      `toml:"default_policy"`
	KickOnClose      *bool       `toml:"kick_on_close"`
	WarningMinutes   *[]int      `toml:"warning_minutes"`
	BypassPermission string      `toml:"bypass_permission"`
	Messages         messagesDoc `toml:"messages"`
	Hooks            hooksDoc    `toml:"hooks"`
	Rules            []ruleDoc   `toml:"rules"`
}

type messagesDoc struct {
	Deny       string `toml:"deny"`
	Kick       string `toml:"kick"`
	Warning    string `toml:"warning"`
	MOTDOpen   string `toml:"motd_open"`
	MOTDClosed string `toml:"motd_closed"`
}

type hooksDoc struct {
	OnOpen         string `toml:"on_open"`
	OnClose        string `toml:"on_close"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ruleDoc struct {
	ID          string      `toml:"id"`
	Description string      `toml:"description"`
	Mode        string      `toml:"mode"`
	Actions     []string    `toml:"actions"`
	Windows     []windowDoc `toml:"windows"`
}

type windowDoc struct {
	Days  []string `toml:"days"`
	Start string   `toml:"start"`
	End   string   `toml:"end"`
	Wrap  bool     `toml:"wrap"`
}

// Digest returns the hex SHA-256 of a policy document.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse decodes a TOML policy document into a new snapshot. source is
// recorded on the snapshot for display. All problems found in the document
// are reported together; the returned error matches ErrInvalidConfiguration
// or ErrUnknownTimeZone with errors.Is.
func Parse(data []byte, source string) (*model.Policy, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}

	var errs []error
	for _, key := range md.Undecoded() {
		errs = append(errs, &ConfigError{Field: key.String(), Message: "unknown key"})
	}

	p := &model.Policy{
		Source:           source,
		Digest:           Digest(data),
		LoadedAt:         time.Now(),
		KickOnClose:      true,
		BypassPermission: model.DefaultBypassPermission,
	}

	loc, err := resolveZone(doc.Timezone)
	if err != nil {
		errs = append(errs, err)
	}
	p.Location = loc

	mode, err := model.ParseMode(doc.DefaultPolicy)
	if err != nil {
		errs = append(errs, &ConfigError{Field: "default_policy", Message: err.Error()})
	}
	p.DefaultMode = mode

	if doc.KickOnClose != nil {
		p.KickOnClose = *doc.KickOnClose
	}
	if s := strings.TrimSpace(doc.BypassPermission); s != "" {
		p.BypassPermission = s
	}

	p.WarningMinutes = slices.Clone(DefaultWarningMinutes)
	if doc.WarningMinutes != nil {
		mins, err := normalizeWarnings(*doc.WarningMinutes)
		if err != nil {
			errs = append(errs, err)
		}
		p.WarningMinutes = mins
	}

	p.Messages = mergeMessages(doc.Messages)

	hooks, err := buildHooks(doc.Hooks)
	if err != nil {
		errs = append(errs, err)
	}
	p.Hooks = hooks

	seen := make(map[string]int, len(doc.Rules))
	for i, rd := range doc.Rules {
		r, rerrs := buildRule(rd, i)
		errs = append(errs, rerrs...)
		if prev, dup := seen[r.ID]; dup {
			errs = append(errs, &ConfigError{
				Rule:    r.ID,
				Field:   "id",
				Message: fmt.Sprintf("duplicate of rules[%d]", prev),
			})
		}
		seen[r.ID] = i
		p.Rules = append(p.Rules, r)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	version, err := idgen.PolicyVersion()
	if err != nil {
		return nil, err
	}
	p.Version = version
	return p, nil
}

func resolveZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local, fmt.Errorf("%w: %q", ErrUnknownTimeZone, name)
	}
	return loc, nil
}

func normalizeWarnings(in []int) ([]int, error) {
	out := make([]int, 0, len(in))
	for i, m := range in {
		if m <= 0 {
			return nil, &ConfigError{
				Field:   fmt.Sprintf("warning_minutes[%d]", i),
				Message: fmt.Sprintf("must be positive, got %d", m),
			}
		}
		out = append(out, m)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return slices.Compact(out), nil
}

func mergeMessages(d messagesDoc) model.Messages {
	m := model.DefaultMessages()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&m.Deny, d.Deny)
	set(&m.Kick, d.Kick)
	set(&m.Warning, d.Warning)
	set(&m.MOTDOpen, d.MOTDOpen)
	set(&m.MOTDClosed, d.MOTDClosed)
	return m
}

func buildHooks(d hooksDoc) (model.Hooks, error) {
	h := model.Hooks{
		OnOpen:  strings.TrimSpace(d.OnOpen),
		OnClose: strings.TrimSpace(d.OnClose),
		Timeout: DefaultHookTimeout,
	}
	switch {
	case d.TimeoutSeconds < 0:
		return h, &ConfigError{Field: "hooks.timeout_seconds", Message: "must not be negative"}
	case d.TimeoutSeconds > 0:
		h.Timeout = min(time.Duration(d.TimeoutSeconds)*time.Second, MaxHookTimeout)
	}
	return h, nil
}

func buildRule(d ruleDoc, index int) (model.GateRule, []error) {
	var errs []error
	r := model.GateRule{
		ID:          strings.TrimSpace(d.ID),
		Description: d.Description,
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("rule-%d", index+1)
	}
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Rule: r.ID, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	mode, err := model.ParseMode(d.Mode)
	if err != nil {
		fail("mode", "%v", err)
	}
	r.Mode = mode

	for _, a := range d.Actions {
		r.Actions = append(r.Actions, strings.TrimSpace(a))
	}

	for i, wd := range d.Windows {
		field := fmt.Sprintf("windows[%d]", i)
		w := model.TimeWindow{Wrap: wd.Wrap}
		if w.Start, err = model.ParseTimeOfDay(wd.Start); err != nil {
			fail(field+".start", "%v", err)
		}
		if w.End, err = model.ParseTimeOfDay(wd.End); err != nil {
			fail(field+".end", "%v", err)
		}
		for j, s := range wd.Days {
			day, err := model.ParseWeekday(s)
			if err != nil {
				fail(fmt.Sprintf("%s.days[%d]", field, j), "%v", err)
				continue
			}
			w.Days |= model.NewWeekdays(day)
		}
		r.Windows = append(r.Windows, w)
	}

	// Field-level parse failures make the remaining checks noisy.
	if len(errs) > 0 {
		return r, errs
	}
	var ve *model.ValidationError
	if err := model.ValidateRule(&r); errors.As(err, &ve) {
		for _, fe := range ve.Errors {
			fail(fe.Field, "%s", fe.Message)
		}
	}
	return r, errs
}
