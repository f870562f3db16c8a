// Package session holds the per-device state the shell renders from: the
// current token and the URL the web view is pointed at.
package session

import (
	"errors"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrNoToken is returned when a web view URL is requested before login.
	ErrNoToken = errors.New("session: no token")
	// ErrUnknownTab is returned for a tab other than prism or feed.
	ErrUnknownTab = errors.New("session: unknown tab")
)

// Tab names a footer tab.
type Tab string

const (
	TabPrism Tab = "prism"
	TabFeed  Tab = "feed"
)

// Tabs maps the footer tabs to their URLs.
type Tabs struct {
	Prism string
	Feed  string
}

// URL returns the URL for tab.
func (t Tabs) URL(tab Tab) (string, error) {
	switch tab {
	case TabPrism:
		return t.Prism, nil
	case TabFeed:
		return t.Feed, nil
	}
	return "", ErrUnknownTab
}

// TabFor returns the tab whose path segment appears in u, or "" if none does.
func TabFor(u string) Tab {
	switch {
	case strings.Contains(u, "/"+string(TabPrism)):
		return TabPrism
	case strings.Contains(u, "/"+string(TabFeed)):
		return TabFeed
	}
	return ""
}

// State is a point-in-time copy of a Context.
type State struct {
	Token string
	Email string
	URL   string
	Tab   Tab
}

// Context is the session state for one device.
type Context struct {
	mu    sync.RWMutex
	tabs  Tabs
	token string
	email string
	url   string
}

// New returns an empty Context pointed at the Prism tab.
func New(tabs Tabs) *Context {
	return &Context{tabs: tabs, url: tabs.Prism}
}

// Token returns the current token and whether one is set.
func (c *Context) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// SetToken replaces the current token.
func (c *Context) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Email returns the email the device logged in with.
func (c *Context) Email() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email
}

// SetEmail records the email the device logged in with.
func (c *Context) SetEmail(email string) {
	c.mu.Lock()
	c.email = email
	c.mu.Unlock()
}

// URL returns the URL the web view renders, without the token.
func (c *Context) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

// SetURL points the web view at u. An empty u resets to the Prism tab.
func (c *Context) SetURL(u string) {
	if u == "" {
		u = c.tabs.Prism
	}
	c.mu.Lock()
	c.url = u
	c.mu.Unlock()
}

// ActiveTab reports which footer tab is highlighted.
func (c *Context) ActiveTab() Tab {
	return TabFor(c.URL())
}

// SwitchTab points the web view at tab and returns the new URL.
func (c *Context) SwitchTab(tab Tab) (string, error) {
	u, err := c.tabs.URL(tab)
	if err != nil {
		return "", err
	}
	c.SetURL(u)
	return u, nil
}

// WebviewURL returns the current URL with the token appended as the token
// query parameter.
func (c *Context) WebviewURL() (string, error) {
	c.mu.RLock()
	token, current := c.token, c.url
	c.mu.RUnlock()
	if token == "" {
		return "", ErrNoToken
	}
	return WithToken(current, token)
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{Token: c.token, Email: c.email, URL: c.url, Tab: TabFor(c.url)}
}

// WithToken appends token to base as the token query parameter.
func WithToken(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
