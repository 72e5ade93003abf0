// Package config provides the parameters of a simulation run. Parameters come
// from dotenv files and are overridden by DDESIM_ environment variables.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix marks the environment variables that override parameters.
const EnvPrefix = "DDESIM_"

// Params is a typed view on a set of string parameters. Keys are case
// insensitive, and dots and dashes are equivalent to underscores.
type Params struct {
	scope  string
	values map[string]string
}

// NewParams creates an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// FromMap creates a parameter set from the given values.
func FromMap(values map[string]string) *Params {
	p := NewParams()
	for k, v := range values {
		p.values[normalize(k)] = v
	}

	return p
}

// Load reads the dotenv files in order, with later files taking precedence,
// and then applies the DDESIM_ environment variables.
func Load(files ...string) (*Params, error) {
	p := NewParams()

	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}

		for k, v := range values {
			p.values[normalize(k)] = v
		}
	}

	p.overlay(os.Environ())

	return p, nil
}

func (p *Params) overlay(environ []string) {
	for _, kv := range environ {
		key, value, found := strings.Cut(kv, "=")
		if !found || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}

		p.values[normalize(strings.TrimPrefix(key, EnvPrefix))] = value
	}
}

func normalize(key string) string {
	key = strings.ToUpper(key)
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")

	return key
}

func (p *Params) key(name string) string {
	if p.scope == "" {
		return normalize(name)
	}

	return p.scope + "_" + normalize(name)
}

// Scope returns a view whose keys are prefixed by the name. Scopes share the
// values of the parameter set they are derived from.
func (p *Params) Scope(name string) *Params {
	return &Params{
		scope:  p.key(name),
		values: p.values,
	}
}

// Set stores a value.
func (p *Params) Set(name, value string) {
	p.values[p.key(name)] = value
}

// Has tells if the parameter is set.
func (p *Params) Has(name string) bool {
	_, found := p.values[p.key(name)]
	return found
}

// Keys lists the keys visible in the scope, without the scope prefix.
func (p *Params) Keys() []string {
	prefix := ""
	if p.scope != "" {
		prefix = p.scope + "_"
	}

	var keys []string
	for k := range p.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}

	sort.Strings(keys)

	return keys
}

// String returns the parameter, or def if it is not set.
func (p *Params) String(name, def string) string {
	v, found := p.values[p.key(name)]
	if !found {
		return def
	}

	return v
}

// Float returns the parameter as a float. The value "inf" is accepted.
func (p *Params) Float(name string, def float64) (float64, error) {
	v, found := p.values[p.key(name)]
	if !found {
		return def, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, p.parseError(name, v, err)
	}

	return f, nil
}

// Int returns the parameter as an int.
func (p *Params) Int(name string, def int) (int, error) {
	v, found := p.values[p.key(name)]
	if !found {
		return def, nil
	}

	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, p.parseError(name, v, err)
	}

	return i, nil
}

// Bool returns the parameter as a bool.
func (p *Params) Bool(name string, def bool) (bool, error) {
	v, found := p.values[p.key(name)]
	if !found {
		return def, nil
	}

	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, p.parseError(name, v, err)
	}

	return b, nil
}

func (p *Params) parseError(name, value string, err error) error {
	return fmt.Errorf("parameter %s=%q: %w", p.key(name), value, err)
}
