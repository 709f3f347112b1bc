// Copyright 2021 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package splunk implements a log.Logger backend that ships log lines to a
// Splunk HTTP Event Collector endpoint in batches, for deployments that pipe
// replica/client logs into Splunk instead of (or in addition to) a terminal.
package splunk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client posts batches of raw log lines to a Splunk HEC endpoint as one
// event per line.
type Client struct {
	httpClient *http.Client
	url        string
	token      string
	source     string
	sourceType string
	index      string
}

// NewClient returns a Client that authenticates with token (sent as a
// Splunk HEC Authorization header, omitted if empty) and tags every event
// with source/sourceType/index.
func NewClient(httpClient *http.Client, url, token, source, sourceType, index string) *Client {
	return &Client{
		httpClient: httpClient,
		url:        url,
		token:      token,
		source:     source,
		sourceType: sourceType,
		index:      index,
	}
}

type hecEvent struct {
	Event      string `json:"event"`
	Source     string `json:"source,omitempty"`
	SourceType string `json:"sourcetype,omitempty"`
	Index      string `json:"index,omitempty"`
}

// send posts events as newline-delimited JSON, HEC's batching format.
func (c *Client) send(events []string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(hecEvent{Event: e, Source: c.source, SourceType: c.sourceType, Index: c.index}); err != nil {
			return fmt.Errorf("splunk: encode event: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, c.url, &buf)
	if err != nil {
		return fmt.Errorf("splunk: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Splunk "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("splunk: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("splunk: unexpected status %s", resp.Status)
	}
	return nil
}
