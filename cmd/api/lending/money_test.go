package lending_test

import (
	"encoding/json"
	"testing"

	"github.com/lending-service/cmd/api/lending"
	"github.com/matryer/is"
)

func TestParseMoney(t *testing.T) {
	valid := map[string]lending.Money{
		"0":     0,
		"0.5":   50,
		".50":   50,
		"5.00":  500,
		"12.34": 1234,
		" 7 ":   700,
	}
	for in, want := range valid {
		t.Run("parses "+in, func(t *testing.T) {
			is := is.New(t)
			got, err := lending.ParseMoney(in)
			is.NoErr(err)
			is.Equal(got, want)
		})
	}

	for _, in := range []string{"", "-1", "1.234", "abc", "1.", "1,50"} {
		t.Run("rejects "+in, func(t *testing.T) {
			is := is.New(t)
			_, err := lending.ParseMoney(in)
			is.Equal(lending.KindOf(err), lending.KindInvalidArgument)
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	is := is.New(t)

	out, err := json.Marshal(struct {
		Fine lending.Money `json:"fine"`
	}{Fine: 1005})
	is.NoErr(err)
	is.Equal(string(out), `{"fine":"10.05"}`)

	var in struct {
		Amount lending.Money `json:"amount"`
	}
	is.NoErr(json.Unmarshal([]byte(`{"amount":"0.50"}`), &in))
	is.Equal(in.Amount, lending.Money(50))
}
