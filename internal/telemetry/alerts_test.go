package telemetry

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

const alertsPath = "../../deploy/prometheus/alerts.yml"

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

func loadAlerts(t *testing.T) []alertGroup {
	t.Helper()
	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("alerts file not found at %s", alertsPath)
	}
	var cfg struct {
		Groups []alertGroup `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("invalid YAML in alerts.yml: %v", err)
	}
	if len(cfg.Groups) == 0 {
		t.Fatal("alerts.yml has no groups")
	}
	return cfg.Groups
}

func TestAlertLabels(t *testing.T) {
	for _, group := range loadAlerts(t) {
		for _, alert := range group.Rules {
			if alert.Alert == "" {
				continue
			}
			if _, ok := alert.Labels["severity"]; !ok {
				t.Errorf("alert %q missing severity label", alert.Alert)
			}
			if _, ok := alert.Annotations["summary"]; !ok {
				t.Errorf("alert %q missing summary annotation", alert.Alert)
			}
		}
	}
}

// Every metric an alert queries must be one this package exports.
func TestAlertMetricsExist(t *testing.T) {
	collectors := []prometheus.Collector{
		APIRequestDuration, APIRequestsTotal, APIActiveConnections,
		DatabaseQueryDuration, DatabaseErrorsTotal,
		LicensesCreatedTotal, LicenseCollisionsTotal, LicenseValidationsTotal, LicenseRedemptionsTotal,
		LoginsTotal, LazyExpiriesTotal, RateLimitedTotal,
	}
	var described []string
	for _, c := range collectors {
		ch := make(chan *prometheus.Desc, 4)
		c.Describe(ch)
		close(ch)
		for d := range ch {
			described = append(described, d.String())
		}
	}

	nameRe := regexp.MustCompile(`keygate_[a-z_]+`)
	for _, group := range loadAlerts(t) {
		for _, alert := range group.Rules {
			for _, name := range nameRe.FindAllString(alert.Expr, -1) {
				name = strings.TrimSuffix(name, "_bucket")
				found := false
				for _, d := range described {
					if strings.Contains(d, `fqName: "`+name+`"`) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("alert %q references unknown metric %s", alert.Alert, name)
				}
			}
		}
	}
}
