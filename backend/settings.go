// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/medmatch/medmatch/settings"
)

func userQuery(sess *Session) url.Values {
	return url.Values{"user": {strconv.Itoa(sess.UserID)}}
}

// Settings fetches the settings of the session's account. The backend
// creates them with defaults on first access.
func (c *Client) Settings(ctx context.Context, sess *Session) (settings.AppSettings, error) {
	if !sess.Valid() {
		return settings.AppSettings{}, ErrNoSession
	}

	var s settings.AppSettings
	err := c.do(ctx, call{
		op:      opFetchSettings,
		method:  http.MethodGet,
		path:    pathAppSettings,
		query:   userQuery(sess),
		session: sess,
		out:     &s,
	})

	return s, err
}

// UpdateSettings sends a partial update and returns the stored settings.
func (c *Client) UpdateSettings(ctx context.Context, sess *Session, patch settings.Patch) (settings.AppSettings, error) {
	if !sess.Valid() {
		return settings.AppSettings{}, ErrNoSession
	}

	var s settings.AppSettings
	err := c.do(ctx, call{
		op:      opUpdateSettings,
		method:  http.MethodPatch,
		path:    pathAppSettings,
		query:   userQuery(sess),
		session: sess,
		in:      patch,
		out:     &s,
	})

	return s, err
}

// SettingsStore binds a client and a session into a settings.Store.
type SettingsStore struct {
	Client  *Client
	Session *Session
}

// Fetch implements settings.Store.
func (s SettingsStore) Fetch(ctx context.Context) (settings.AppSettings, error) {
	return s.Client.Settings(ctx, s.Session)
}

// Update implements settings.Store.
func (s SettingsStore) Update(ctx context.Context, patch settings.Patch) (settings.AppSettings, error) {
	return s.Client.UpdateSettings(ctx, s.Session, patch)
}

var _ settings.Store = SettingsStore{}
