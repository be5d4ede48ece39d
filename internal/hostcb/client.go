/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package hostcb posts editor callbacks (save, close, template and URL image use)
// to the embedding game client and reports the outcome as a value.
package hostcb

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	applog "sprayeditor/internal/log"
)

// ErrCallbackDelivery marks a callback that could not be delivered or decoded.
var ErrCallbackDelivery = errors.New("callback delivery failed")

// Callback actions understood by the host.
const (
	ActionSaveDesign  = "saveSprayDesign"
	ActionCloseEditor = "closeEditor"
	ActionCloseNUI    = "closeNUI"
	ActionUseTemplate = "useTemplate"
	ActionUseURLImage = "useUrlImage"
)

// maxResponse bounds how much of a host reply is read.
const maxResponse = 1 << 20

// Result is the host's reply. Transport failures are folded into Success=false.
type Result struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"-"`
	// Err keeps the wrapped cause for errors.Is; it is not part of the wire format.
	Err error `json:"-"`
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	TLSInsecure bool
	HTTPClient  *http.Client
}

// Client sends callbacks. It is safe for concurrent use.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
	log     *slog.Logger
}

// New builds a client. BaseURL may include a trailing slash; it will be normalized.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
		if opts.TLSInsecure {
			hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec // local game client uses self-signed certs
		}
	}
	return &Client{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		Token:   opts.Token,
		client:  hc,
		log:     applog.WithComponent("hostcb"),
	}
}

// Send posts body to action in the background. The channel yields exactly one Result.
func (c *Client) Send(ctx context.Context, action string, body any) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- c.Post(ctx, action, body)
	}()
	return out
}

// Post delivers body synchronously. It never returns an error; failures are
// reported through Result.
func (c *Client) Post(ctx context.Context, action string, body any) Result {
	if c == nil {
		err := fmt.Errorf("%w: no client", ErrCallbackDelivery)
		return Result{Success: false, Error: err.Error(), Err: err}
	}
	l := c.log.With(slog.String("action", action))
	res, err := c.post(ctx, action, body)
	if err != nil {
		l.Warn("callback failed", slog.Any("err", err))
		return Result{Success: false, Error: err.Error(), Err: err}
	}
	l.Debug("callback delivered", slog.Bool("success", res.Success))
	return res
}

func (c *Client) post(ctx context.Context, action string, body any) (Result, error) {
	if action == "" {
		return Result{}, fmt.Errorf("%w: empty action", ErrCallbackDelivery)
	}
	if body == nil {
		body = map[string]any{}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode %s: %v", ErrCallbackDelivery, action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+action, bytes.NewReader(buf))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCallbackDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCallbackDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read %s: %v", ErrCallbackDelivery, action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: host %s: %s", ErrCallbackDelivery, action, resp.Status)
	}
	return decode(raw)
}

// decode accepts {"success":bool,"error":string,...}. Extra keys land in Data.
func decode(raw []byte) (Result, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Result{}, fmt.Errorf("%w: decode reply: %v", ErrCallbackDelivery, err)
	}
	res := Result{Data: data}
	if v, ok := data["success"].(bool); ok {
		res.Success = v
	}
	if v, ok := data["error"].(string); ok {
		res.Error = v
	}
	return res, nil
}
