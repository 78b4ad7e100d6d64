package treesitter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findElement(t *testing.T, r *FileResult, name string) (int, Element) {
	t.Helper()
	for i, e := range r.Elements {
		if e.Name == name {
			return i, e
		}
	}
	t.Fatalf("element %q not found in %+v", name, r.Elements)
	return -1, Element{}
}

func importPaths(r *FileResult) []string {
	paths := make([]string, len(r.Imports))
	for i, imp := range r.Imports {
		paths[i] = imp.Path
	}
	return paths
}

func callsFrom(r *FileResult, caller int) []string {
	var callees []string
	for _, c := range r.Calls {
		if c.Caller == caller {
			callees = append(callees, c.Callee)
		}
	}
	return callees
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"src/app.js", "javascript"},
		{"src/App.jsx", "jsx"},
		{"src/index.ts", "typescript"},
		{"src/App.tsx", "tsx"},
		{"types/global.d.ts", ""},
		{"main.py", "python"},
		{"cmd/main.go", "go"},
		{"README.md", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
		})
	}
}

func TestParse_JavaScript(t *testing.T) {
	code := `import firebase from 'firebase/app';
const axios = require('axios');

export function initAuth(config) {
  const app = firebase.initializeApp(config);
  return helper(app);
}

function helper(app) { return app; }

class UserService {
  save(user) {
    return db.insert(user);
  }
}

const fetchUser = async (id) => axios.get('/users/' + id);
`
	r, err := Parse("src/auth.js", []byte(code))
	require.NoError(t, err)
	assert.Equal(t, "javascript", r.Language)

	initIdx, initAuth := findElement(t, r, "initAuth")
	assert.Equal(t, KindFunction, initAuth.Kind)
	assert.Equal(t, 4, initAuth.StartLine)
	assert.Equal(t, 7, initAuth.EndLine)

	_, class := findElement(t, r, "UserService")
	assert.Equal(t, KindClass, class.Kind)
	saveIdx, save := findElement(t, r, "UserService.save")
	assert.Equal(t, KindMethod, save.Kind)
	fetchIdx, _ := findElement(t, r, "fetchUser")

	assert.Equal(t, []string{"firebase/app", "axios"}, importPaths(r))
	assert.Equal(t, "import firebase from 'firebase/app';", r.Imports[0].Statement)

	assert.ElementsMatch(t, []string{"initializeApp", "helper"}, callsFrom(r, initIdx))
	assert.Equal(t, []string{"insert"}, callsFrom(r, saveIdx))
	assert.Equal(t, []string{"get"}, callsFrom(r, fetchIdx))
}

func TestParse_TypeScript(t *testing.T) {
	code := `import Stripe from 'stripe';

export interface PaymentGateway {
  charge(amount: number): Promise<void>;
}

export type Currency = 'usd' | 'eur';

export class StripeGateway implements PaymentGateway {
  async charge(amount: number): Promise<void> {
    await this.client.charges.create({ amount });
  }
}
`
	r, err := Parse("src/payments.ts", []byte(code))
	require.NoError(t, err)
	assert.Equal(t, "typescript", r.Language)

	_, iface := findElement(t, r, "PaymentGateway")
	assert.Equal(t, KindInterface, iface.Kind)
	_, alias := findElement(t, r, "Currency")
	assert.Equal(t, KindType, alias.Kind)
	chargeIdx, charge := findElement(t, r, "StripeGateway.charge")
	assert.Equal(t, KindMethod, charge.Kind)

	assert.Equal(t, []string{"stripe"}, importPaths(r))
	assert.Equal(t, []string{"create"}, callsFrom(r, chargeIdx))
}

func TestParse_Python(t *testing.T) {
	code := `import os
from stripe import Charge


class Billing:
    def charge(self, amount):
        return Charge.create(amount=amount)


def main():
    Billing().charge(10)
`
	r, err := Parse("billing.py", []byte(code))
	require.NoError(t, err)

	_, class := findElement(t, r, "Billing")
	assert.Equal(t, KindClass, class.Kind)
	chargeIdx, charge := findElement(t, r, "Billing.charge")
	assert.Equal(t, KindMethod, charge.Kind)
	assert.Equal(t, 6, charge.StartLine)
	mainIdx, _ := findElement(t, r, "main")

	assert.Equal(t, []string{"os", "stripe"}, importPaths(r))
	assert.Equal(t, []string{"create"}, callsFrom(r, chargeIdx))
	assert.ElementsMatch(t, []string{"charge", "Billing"}, callsFrom(r, mainIdx))
}

func TestParse_Go(t *testing.T) {
	code := `package store

import (
	"fmt"

	"github.com/lib/pq"
)

type Store struct{ db string }

type Reader interface{ Read() error }

func New() *Store { return &Store{} }

func (s *Store) Save(v string) error {
	fmt.Println(v)
	return validate(v)
}
`
	r, err := Parse("store/store.go", []byte(code))
	require.NoError(t, err)

	_, store := findElement(t, r, "Store")
	assert.Equal(t, KindClass, store.Kind)
	_, reader := findElement(t, r, "Reader")
	assert.Equal(t, KindInterface, reader.Kind)
	_, newFn := findElement(t, r, "New")
	assert.Equal(t, KindFunction, newFn.Kind)
	saveIdx, save := findElement(t, r, "Store.Save")
	assert.Equal(t, KindMethod, save.Kind)
	assert.Equal(t, 15, save.StartLine)

	assert.Equal(t, []string{"fmt", "github.com/lib/pq"}, importPaths(r))
	assert.Equal(t, []string{"Println", "validate"}, callsFrom(r, saveIdx))
}

func TestParse_Unsupported(t *testing.T) {
	_, err := Parse("notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "util.py")
	require.NoError(t, os.WriteFile(path, []byte("def slugify(s):\n    return s.lower()\n"), 0o644))

	r, err := ParseFile(path)
	require.NoError(t, err)
	_, fn := findElement(t, r, "slugify")
	assert.Equal(t, 2, fn.EndLine)
}

func TestReceiverType(t *testing.T) {
	assert.Equal(t, "Store", receiverType("(s *Store)"))
	assert.Equal(t, "Store", receiverType("(Store)"))
	assert.Equal(t, "List", receiverType("(l *List[T])"))
	assert.Equal(t, "", receiverType("()"))
}
