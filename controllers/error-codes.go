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
	"strconv"

	"github.com/gin-gonic/gin"

	"go.6river.tech/dockv/errdefs"
	"go.6river.tech/dockv/registry"
)

// ErrorCodesController serves the query error code registry, so whoever is
// staring at a failed request can look up what a code means and whether a
// retry is sane without leaving the incident.
type ErrorCodesController struct{}

const errorsRoot = "/errors"

func (ec *ErrorCodesController) Register(reg *registry.Registry, router gin.IRouter) error {
	reg.RegisterMap(router, errorsRoot, registry.HandlerMap{
		{http.MethodGet, ""}:        ec.List,
		{http.MethodGet, "/"}:       ec.List,
		{http.MethodGet, "/search"}: ec.Search,
		{http.MethodGet, "/:code"}:  ec.Get,
	})
	return nil
}

func (*ErrorCodesController) List(c *gin.Context) {
	c.JSON(http.StatusOK, errdefs.AllCodes())
}

func (*ErrorCodesController) Get(c *gin.Context) {
	code, err := strconv.ParseUint(c.Param("code"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": c.Param("code"), "message": err.Error()})
		return
	}
	d, ok := errdefs.LookupCode(errdefs.ErrorCode(code))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": code, "message": "No such error code"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (*ErrorCodesController) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Must provide 'q' parameter to search"})
		return
	}
	c.JSON(http.StatusOK, errdefs.SearchCodes(q))
}
