// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"net/http"

	"github.com/medmatch/medmatch/provider"
)

// SearchRequest is a provider search. Empty fields are left to the backend
// defaults.
type SearchRequest struct {
	Query            string `json:"query,omitempty"`
	InsuranceNetwork string `json:"insurance_network,omitempty"`
	Insurance        string `json:"insurance,omitempty"`
	InsuranceID      string `json:"insurance_id,omitempty"`
	Specialty        string `json:"specialty,omitempty"`
	Location         string `json:"location,omitempty"`
	PostalCode       string `json:"postal_code,omitempty"`
}

// GraphState is the result state of the search pipeline run by the backend.
type GraphState struct {
	Insurance  string               `json:"insurance,omitempty"`
	Specialty  string               `json:"specialty,omitempty"`
	Location   string               `json:"location,omitempty"`
	PostalCode string               `json:"postal_code,omitempty"`
	Providers  []provider.RawRecord `json:"providers"`
}

// SearchResponse is a stored search with its results.
type SearchResponse struct {
	ID         provider.RecordID `json:"id"`
	GraphState GraphState        `json:"graph_state"`
}

// Search runs a provider search for the session's account.
func (c *Client) Search(ctx context.Context, sess *Session, req SearchRequest) (*SearchResponse, error) {
	if !sess.Valid() {
		return nil, ErrNoSession
	}

	var resp SearchResponse
	if err := c.do(ctx, call{
		op:      opSearch,
		method:  http.MethodPost,
		path:    pathSearches,
		session: sess,
		in:      req,
		out:     &resp,
		want:    []int{http.StatusOK, http.StatusCreated},
	}); err != nil {
		return nil, err
	}

	return &resp, nil
}
