/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package hostcb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPost_SuccessCarriesBodyAndToken(t *testing.T) {
	var gotPath, gotAuth, gotCT string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"id":"abc"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/", Token: "tkn"})
	res := c.Post(context.Background(), ActionSaveDesign, map[string]any{"imageData": "data:image/png;base64,AAAA"})
	if !res.Success || res.Error != "" {
		t.Fatalf("expected success, got %+v", res)
	}
	if gotPath != "/saveSprayDesign" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tkn" {
		t.Fatalf("missing bearer token, got %q", gotAuth)
	}
	if gotCT != "application/json" {
		t.Fatalf("unexpected content type %q", gotCT)
	}
	if gotBody["imageData"] != "data:image/png;base64,AAAA" {
		t.Fatalf("body not forwarded: %v", gotBody)
	}
	if res.Data["id"] != "abc" {
		t.Fatalf("extra reply fields should be kept, got %v", res.Data)
	}
}

func TestPost_HostReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"no space left"}`))
	}))
	defer srv.Close()

	res := New(Options{BaseURL: srv.URL}).Post(context.Background(), ActionSaveDesign, nil)
	if res.Success || res.Error != "no space left" {
		t.Fatalf("expected host failure, got %+v", res)
	}
	if res.Err != nil {
		t.Fatalf("a delivered failure is not a delivery error: %v", res.Err)
	}
}

func TestPost_DeliveryFailures(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/closeNUI" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("<html>"))
	}))
	defer bad.Close()

	c := New(Options{BaseURL: bad.URL})
	for _, action := range []string{ActionCloseNUI, ActionCloseEditor} {
		res := c.Post(context.Background(), action, nil)
		if res.Success || res.Error == "" {
			t.Fatalf("%s: expected failure, got %+v", action, res)
		}
		if !errors.Is(res.Err, ErrCallbackDelivery) {
			t.Fatalf("%s: expected ErrCallbackDelivery, got %v", action, res.Err)
		}
	}

	bad.Close()
	res := c.Post(context.Background(), ActionCloseNUI, nil)
	if res.Success || !errors.Is(res.Err, ErrCallbackDelivery) {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestPost_NilClientAndEmptyAction(t *testing.T) {
	var c *Client
	if res := c.Post(context.Background(), ActionCloseNUI, nil); res.Success || !errors.Is(res.Err, ErrCallbackDelivery) {
		t.Fatalf("nil client must report a delivery error, got %+v", res)
	}
	select {
	case res := <-c.Send(context.Background(), ActionCloseNUI, nil):
		if res.Success {
			t.Fatalf("nil client send must not succeed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("nil client send never completed")
	}
	if res := New(Options{BaseURL: "http://127.0.0.1:1"}).Post(context.Background(), "", nil); !errors.Is(res.Err, ErrCallbackDelivery) {
		t.Fatalf("empty action should be a delivery error, got %+v", res)
	}
}

func TestSend_YieldsOneResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	ch := New(Options{BaseURL: srv.URL}).Send(context.Background(), ActionUseTemplate, map[string]any{"templateId": "t1"})
	select {
	case res := <-ch:
		if !res.Success {
			t.Fatalf("expected success, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no result delivered")
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := <-New(Options{BaseURL: srv.URL}).Send(ctx, ActionUseURLImage, nil)
	if res.Success || !errors.Is(res.Err, ErrCallbackDelivery) {
		t.Fatalf("expected cancellation failure, got %+v", res)
	}
}
