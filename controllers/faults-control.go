// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package controllers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"go.6river.tech/dockv/faults"
	"go.6river.tech/dockv/registry"
)

// FaultsController exposes a fault set over HTTP, so tests and chaos tooling
// can arm failures in a running process without redeploying it.
type FaultsController struct {
	set *faults.Set
}

func NewFaultsController(set *faults.Set) *FaultsController {
	return &FaultsController{set: set}
}

const faultsRoot = "/faults"

func (f *FaultsController) Register(reg *registry.Registry, router gin.IRouter) error {
	reg.RegisterMap(router, faultsRoot, registry.HandlerMap{
		{http.MethodGet, ""}:     f.List,
		{http.MethodGet, "/"}:    f.List,
		{http.MethodPost, ""}:    f.Inject,
		{http.MethodPost, "/"}:   f.Inject,
		{http.MethodDelete, ""}:  f.Clear,
		{http.MethodDelete, "/"}: f.Clear,
	})
	return nil
}

// faultStatus is the wire projection of a fault description; the OnFault
// callback has no JSON form.
type faultStatus struct {
	Operation  string            `json:"operation"`
	Parameters faults.Parameters `json:"parameters,omitempty"`
	Remaining  int64             `json:"remaining"`
}

func (f *FaultsController) List(c *gin.Context) {
	current := f.set.Current()
	out := make([]faultStatus, 0, len(current))
	for op, descs := range current {
		for _, d := range descs {
			out = append(out, faultStatus{
				Operation:  op,
				Parameters: d.Parameters,
				Remaining:  d.Count,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	c.JSON(http.StatusOK, out)
}

type injectRequest struct {
	Operation  string            `json:"operation" binding:"required"`
	Parameters faults.Parameters `json:"parameters"`
	Count      int64             `json:"count" binding:"required"`
	// Message becomes the text of the injected error.
	Message string `json:"message"`
}

func (f *FaultsController) Inject(c *gin.Context) {
	var req injectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Message == "" {
		req.Message = "injected fault"
	}
	if err := f.set.InjectError(req.Operation, req.Parameters, req.Count, errors.New(req.Message)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, faultStatus{
		Operation:  req.Operation,
		Parameters: req.Parameters,
		Remaining:  req.Count,
	})
}

func (f *FaultsController) Clear(c *gin.Context) {
	n := f.set.Clear(c.Query("operation"))
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}
