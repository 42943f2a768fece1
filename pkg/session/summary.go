// Copyright (c) 2017 Intel Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"io"
	"math"
	"strconv"

	"github.com/intelsdi-x/cadence/pkg/results"
	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// SummaryPrecision is the number of decimal places of summary values.
const SummaryPrecision = 4

// SummaryRow describes samples of one property of a block.
type SummaryRow struct {
	Block    string
	Property string
	Samples  int
	Mean     decimal.Decimal
	StdDev   decimal.Decimal
	Min      decimal.Decimal
	Max      decimal.Decimal
	Status   string
}

// Summarize returns rows for every property of every block, in snapshot order.
// Erroneous blocks without samples get a single row with their status.
func Summarize(snapshot *results.Snapshot) []SummaryRow {
	rows := []SummaryRow{}
	for _, block := range snapshot.Blocks {
		status := "ok"
		switch {
		case block.InternalError != nil:
			status = "internal error: " + block.InternalError.Message
		case block.Error != nil:
			status = "error: " + block.Error.Message
		}

		if len(block.Properties) == 0 {
			rows = append(rows, SummaryRow{Block: block.Attributes.Description, Status: status})
			continue
		}
		for _, property := range block.Properties {
			values := stats.Float64Data(block.Data[property])
			row := SummaryRow{Block: block.Attributes.Description, Property: property, Samples: len(values), Status: status}
			if mean, err := values.Mean(); err == nil {
				row.Mean = round(mean)
			}
			if stddev, err := values.StandardDeviationSample(); err == nil && len(values) > 1 {
				row.StdDev = round(stddev)
			}
			if min, err := values.Min(); err == nil {
				row.Min = round(min)
			}
			if max, err := values.Max(); err == nil {
				row.Max = round(max)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// RenderSummary writes summary of the snapshot as a table.
func RenderSummary(w io.Writer, snapshot *results.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Block", "Property", "N", "Mean", "Std dev", "Min", "Max", "Status"})
	for _, row := range Summarize(snapshot) {
		if row.Property == "" {
			table.Append([]string{row.Block, "-", "0", "-", "-", "-", "-", row.Status})
			continue
		}
		table.Append([]string{
			row.Block,
			row.Property,
			strconv.Itoa(row.Samples),
			row.Mean.String(),
			row.StdDev.String(),
			row.Min.String(),
			row.Max.String(),
			row.Status,
		})
	}
	table.Render()
}

// round returns zero for NaN and infinities which decimal cannot represent.
func round(value float64) decimal.Decimal {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(value).Round(SummaryPrecision)
}
