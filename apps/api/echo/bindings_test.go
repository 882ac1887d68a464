package echoapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
)

func Test_Ordering_Bind(t *testing.T) {
	tests := []struct {
		name     string
		ordering string
		want     []core.DBOrdering
	}{
		{name: "empty param"},
		{
			name:     "single field",
			ordering: "date",
			want:     []core.DBOrdering{{Field: "date", Ascending: true}},
		},
		{
			name:     "descending and multiple fields",
			ordering: "-date,amount",
			want: []core.DBOrdering{
				{Field: "date", Ascending: false},
				{Field: "amount", Ascending: true},
			},
		},
		{
			name:     "non-identifier fields are dropped",
			ordering: "date;DROP TABLE expense--,amount",
			want:     []core.DBOrdering{{Field: "amount", Ascending: true}},
		},
		{
			name:     "quoted and spaced fields are dropped",
			ordering: `date DESC,(SELECT 1),"date"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := url.Values{}
			if tt.ordering != "" {
				query.Set(orderingParam, tt.ordering)
			}
			req := httptest.NewRequest(http.MethodGet, "/?"+query.Encode(), nil)
			ctx := echo.New().NewContext(req, httptest.NewRecorder())

			ord := new(Ordering)
			ord.Bind(ctx)
			if !reflect.DeepEqual(ord.Orderings, tt.want) {
				t.Errorf("Orderings = %+v; want %+v", ord.Orderings, tt.want)
			}
		})
	}
}

func Test_DBOrdering_IsValid(t *testing.T) {
	valid := []string{"date", "created_at", "Amount2"}
	for _, f := range valid {
		if !(core.DBOrdering{Field: f}).IsValid() {
			t.Errorf("IsValid(%q) = false; want true", f)
		}
	}
	invalid := []string{"", "date DESC", "date;--", "1date", `"date"`, "a.b"}
	for _, f := range invalid {
		if (core.DBOrdering{Field: f}).IsValid() {
			t.Errorf("IsValid(%q) = true; want false", f)
		}
	}
}
