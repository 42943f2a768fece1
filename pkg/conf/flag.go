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

package conf

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"
)

// flagType is an internal interface for all flags.
// Every flag should have method for creating `envName` from its name and `clear` method
// for clearing corresponding environment variable from env.
type flagType interface {
	envName() string
	clear()
	help() string
	defaultString() string
	valueString() string
}

// definedFlags is a package variable which stores all the defined flags. It helps to find
// duplicates when defining flag with the same name.
var definedFlags = map[string]flagType{}

// cliAndEnvFlag represents option's definition from CLI and Environment variable.
// It stores generic data for each defined flag.
type cliAndEnvFlag struct {
	*kingpin.FlagClause
	name        string
	description string
	defaultStr  string
}

func newCliAndEnvFlag(flagName string, description string, defaultValue string) *cliAndEnvFlag {
	c := &cliAndEnvFlag{
		FlagClause:  app.Flag(flagName, description),
		name:        flagName,
		description: description,
		defaultStr:  defaultValue,
	}
	c.OverrideDefaultFromEnvar(c.envName())
	if defaultValue != "" {
		c.Default(defaultValue)
	}
	return c
}

// envName returns name converted to environment variable name.
// For instance: "max_runs" will be "CADENCE_MAX_RUNS".
func (f *cliAndEnvFlag) envName() string {
	return envName(f.name)
}

// clear unset the corresponded environment variable.
func (f *cliAndEnvFlag) clear() {
	os.Unsetenv(f.envName())
}

func (f *cliAndEnvFlag) help() string {
	return f.description
}

func (f *cliAndEnvFlag) defaultString() string {
	return f.defaultStr
}

// lookupFlag returns already defined flag with the same name. It panics when the previous
// definition differs in type or default value.
func lookupFlag(flagName string, defaultValue string, sameType func(flagType) bool) flagType {
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag == nil {
		return nil
	}
	if !sameType(duplicatedFlag) {
		panic("Flag was redefined but with different type. Unify the type.")
	}
	if duplicatedFlag.defaultString() != defaultValue {
		panic("Flag was redefined but with different default value. Unify the default.")
	}
	return duplicatedFlag
}

func register(flagName string, flag flagType) {
	definedFlags[flagName] = flag
	isEnvParsed = false
}

// StringFlag represents flag with string value.
type StringFlag struct {
	*cliAndEnvFlag
	defaultValue string
	value        *string
}

// NewStringFlag is a constructor of StringFlag struct.
func NewStringFlag(flagName string, description string, defaultValue string) *StringFlag {
	if f := lookupFlag(flagName, defaultValue, func(f flagType) bool { _, ok := f.(*StringFlag); return ok }); f != nil {
		return f.(*StringFlag)
	}

	flagDef := &StringFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultValue),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.String()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (s StringFlag) Value() string {
	if !isEnvParsed {
		return s.defaultValue
	}
	return *s.value
}

func (s StringFlag) valueString() string {
	return s.Value()
}

// IntFlag represents flag with int value.
type IntFlag struct {
	*cliAndEnvFlag
	defaultValue int
	value        *int
}

// NewIntFlag is a constructor of IntFlag struct.
func NewIntFlag(flagName string, description string, defaultValue int) *IntFlag {
	defaultStr := strconv.Itoa(defaultValue)
	if f := lookupFlag(flagName, defaultStr, func(f flagType) bool { _, ok := f.(*IntFlag); return ok }); f != nil {
		return f.(*IntFlag)
	}

	flagDef := &IntFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultStr),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.Int()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (i IntFlag) Value() int {
	if !isEnvParsed {
		return i.defaultValue
	}
	return *i.value
}

func (i IntFlag) valueString() string {
	return strconv.Itoa(i.Value())
}

// FloatFlag represents flag with float value.
type FloatFlag struct {
	*cliAndEnvFlag
	defaultValue float64
	value        *float64
}

// NewFloatFlag is a constructor of FloatFlag struct.
func NewFloatFlag(flagName string, description string, defaultValue float64) *FloatFlag {
	defaultStr := strconv.FormatFloat(defaultValue, 'g', -1, 64)
	if f := lookupFlag(flagName, defaultStr, func(f flagType) bool { _, ok := f.(*FloatFlag); return ok }); f != nil {
		return f.(*FloatFlag)
	}

	flagDef := &FloatFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultStr),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.Float64()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
func (f FloatFlag) Value() float64 {
	if !isEnvParsed {
		return f.defaultValue
	}
	return *f.value
}

func (f FloatFlag) valueString() string {
	return strconv.FormatFloat(f.Value(), 'g', -1, 64)
}

// BoolFlag represents flag with bool value.
type BoolFlag struct {
	*cliAndEnvFlag
	defaultValue bool
	value        *bool
}

// NewBoolFlag is a constructor of BoolFlag struct.
func NewBoolFlag(flagName string, description string, defaultValue bool) *BoolFlag {
	defaultStr := strconv.FormatBool(defaultValue)
	if f := lookupFlag(flagName, defaultStr, func(f flagType) bool { _, ok := f.(*BoolFlag); return ok }); f != nil {
		return f.(*BoolFlag)
	}

	flagDef := &BoolFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultStr),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.Bool()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (b BoolFlag) Value() bool {
	if !isEnvParsed {
		return b.defaultValue
	}
	return *b.value
}

func (b BoolFlag) valueString() string {
	return strconv.FormatBool(b.Value())
}

// DurationFlag represents flag with duration value.
type DurationFlag struct {
	*cliAndEnvFlag
	defaultValue time.Duration
	value        *time.Duration
}

// NewDurationFlag is a constructor of DurationFlag struct.
func NewDurationFlag(flagName string, description string, defaultValue time.Duration) *DurationFlag {
	defaultStr := defaultValue.String()
	if f := lookupFlag(flagName, defaultStr, func(f flagType) bool { _, ok := f.(*DurationFlag); return ok }); f != nil {
		return f.(*DurationFlag)
	}

	flagDef := &DurationFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultStr),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.Duration()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (d DurationFlag) Value() time.Duration {
	if !isEnvParsed {
		return d.defaultValue
	}
	return *d.value
}

func (d DurationFlag) valueString() string {
	return d.Value().String()
}

// SliceFlag represents flag with comma separated list of strings.
type SliceFlag struct {
	*StringFlag
}

// NewSliceFlag is a constructor of SliceFlag struct.
func NewSliceFlag(flagName string, description string, elemsInDefaultSlice ...string) *SliceFlag {
	defaultStr := strings.Join(elemsInDefaultSlice, ",")
	if f := lookupFlag(flagName, defaultStr, func(f flagType) bool { _, ok := f.(*SliceFlag); return ok }); f != nil {
		return f.(*SliceFlag)
	}

	flagDef := &SliceFlag{
		StringFlag: &StringFlag{
			cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultStr),
			defaultValue:  defaultStr,
		},
	}
	flagDef.value = flagDef.String()
	register(flagName, flagDef)
	return flagDef
}

// Value returns elements of the comma separated list with surrounding spaces removed.
// Empty elements are skipped.
func (s SliceFlag) Value() []string {
	return splitList(s.StringFlag.Value())
}

// TagMapFlag represents flag with comma separated list of "tag=number" pairs.
type TagMapFlag struct {
	*StringFlag
}

// NewTagMapFlag is a constructor of TagMapFlag struct.
func NewTagMapFlag(flagName string, description string, defaultValue string) *TagMapFlag {
	if f := lookupFlag(flagName, defaultValue, func(f flagType) bool { _, ok := f.(*TagMapFlag); return ok }); f != nil {
		return f.(*TagMapFlag)
	}

	flagDef := &TagMapFlag{
		StringFlag: &StringFlag{
			cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultValue),
			defaultValue:  defaultValue,
		},
	}
	flagDef.value = flagDef.String()
	register(flagName, flagDef)
	return flagDef
}

// Value returns parsed map. Malformed pairs result in an error.
func (t TagMapFlag) Value() (map[string]int, error) {
	return ParseTagMap(t.StringFlag.Value())
}

// ParseTagMap parses "tag=number" pairs separated with commas, e.g. "slow=10,fast=100".
func ParseTagMap(value string) (map[string]int, error) {
	result := map[string]int{}
	for _, pair := range splitList(value) {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, errors.Errorf("malformed tag pair %q, expected tag=number", pair)
		}
		number, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "malformed number in tag pair %q", pair)
		}
		result[strings.TrimSpace(parts[0])] = number
	}
	return result, nil
}

func splitList(value string) []string {
	var result []string
	for _, elem := range strings.Split(value, ",") {
		elem = strings.TrimSpace(elem)
		if elem != "" {
			result = append(result, elem)
		}
	}
	return result
}
