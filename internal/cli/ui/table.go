package ui

import (
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Table renders rows under headers
func Table(w io.Writer, headers []string, rows [][]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

// MethodColor colors an HTTP method
func MethodColor(method string, noColor bool) string {
	if noColor {
		return method
	}
	switch method {
	case "GET":
		return color.GreenString(method)
	case "POST":
		return color.YellowString(method)
	case "PATCH", "PUT":
		return color.BlueString(method)
	case "DELETE":
		return color.RedString(method)
	}
	return method
}
