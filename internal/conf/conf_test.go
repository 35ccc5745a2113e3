package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	_ "github.com/go-kratos/kratos/v2/encoding/yaml"
)

func TestDurationUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{in: `"1.5s"`, want: 1500 * time.Millisecond},
		{in: `"168h"`, want: 168 * time.Hour},
		{in: `1000000`, want: time.Millisecond},
		{in: `"soon"`, err: true},
		{in: `true`, err: true},
	}
	for _, tc := range cases {
		var d Duration
		err := json.Unmarshal([]byte(tc.in), &d)
		if tc.err {
			if err == nil {
				t.Errorf("%s: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if d.AsDuration() != tc.want {
			t.Errorf("%s: got %v, want %v", tc.in, d.AsDuration(), tc.want)
		}
	}

	var missing *Duration
	if missing.AsDuration() != 0 {
		t.Fatal("nil duration should be zero")
	}
}

func TestLoadConfigFile(t *testing.T) {
	c := config.New(config.WithSource(file.NewSource("../../configs/config.yaml")))
	defer c.Close()
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if bc.Server.Http.Timeout.AsDuration() != 5*time.Second {
		t.Errorf("http timeout = %v", bc.Server.Http.Timeout.AsDuration())
	}
	if bc.Data.Database.MaxOpenConns != 50 || bc.Data.Redis.CacheTtl.AsDuration() != 5*time.Minute {
		t.Errorf("unexpected data config: %+v %+v", bc.Data.Database, bc.Data.Redis)
	}
	if bc.Ledger.PendingExpiry.AsDuration() != 168*time.Hour || len(bc.Ledger.Packages) != 3 {
		t.Errorf("unexpected ledger config: %+v", bc.Ledger)
	}
	if bc.Ledger.Packages[1].Price != "250.00" {
		t.Errorf("package price = %q", bc.Ledger.Packages[1].Price)
	}
	if bc.Cron.ExpireSpec == "" || bc.Admin.Token == "" {
		t.Errorf("unexpected cron/admin config: %+v %+v", bc.Cron, bc.Admin)
	}
}
