package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// ServiceEntry is one named section of a Postgres-style pg_service.conf:
// a set of connection parameters selected by --service or the PGSERVICE
// environment variable, the file layout described in libpq's own
// PQconnectdbParams service-file documentation.
type ServiceEntry struct {
	Host            string
	Port            int
	DBName          string
	User            string
	Password        string
	ApplicationName string
}

// LoadServiceFile reads path as an INI file (one section per service) and
// returns the named section. path defaults to the PGSERVICEFILE
// environment variable when empty.
func LoadServiceFile(path, service string) (*ServiceEntry, error) {
	if path == "" {
		path = os.Getenv("PGSERVICEFILE")
	}
	if path == "" {
		return nil, fmt.Errorf("no service file configured (set --service-file or PGSERVICEFILE)")
	}
	if service == "" {
		service = os.Getenv("PGSERVICE")
	}
	if service == "" {
		return nil, fmt.Errorf("no service section selected (set --service or PGSERVICE)")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read service file %s: %w", path, err)
	}

	section := v.Sub(service)
	if section == nil {
		return nil, fmt.Errorf("service file %s has no section %q", path, service)
	}

	entry := &ServiceEntry{
		Host:            section.GetString("host"),
		DBName:          section.GetString("dbname"),
		User:            section.GetString("user"),
		Password:        section.GetString("password"),
		ApplicationName: section.GetString("application_name"),
	}
	if port := section.GetString("port"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("service %q has non-numeric port %q", service, port)
		}
		entry.Port = p
	}
	return entry, nil
}

// DSN builds a lib/pq connection string from the service entry.
func (e *ServiceEntry) DSN() string {
	dsn := fmt.Sprintf("host=%s dbname=%s user=%s sslmode=disable", e.Host, e.DBName, e.User)
	if e.Port != 0 {
		dsn += fmt.Sprintf(" port=%d", e.Port)
	}
	if e.Password != "" {
		dsn += fmt.Sprintf(" password=%s", e.Password)
	}
	if e.ApplicationName != "" {
		dsn += fmt.Sprintf(" application_name=%s", e.ApplicationName)
	}
	return dsn
}
