package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/invalidation"
	"github.com/illmade-knight/go-remoteconfig/pkg/microservice"
	"github.com/illmade-knight/go-remoteconfig/pkg/revalidate"
	"github.com/illmade-knight/go-remoteconfig/pkg/source"
	"github.com/spf13/viper"
)

// Supported values of the source setting.
const (
	SourceHTTP      = "http"
	SourceFile      = "file"
	SourceGCS       = "gcs"
	SourceRedis     = "redis"
	SourceFirestore = "firestore"
	SourceBigQuery  = "bigquery"
)

// Config is everything the server needs, assembled from flags, environment
// variables and an optional config file.
type Config struct {
	microservice.BaseConfig `yaml:",inline"`

	Source         string                             `yaml:"source"`
	Revalidate     revalidate.Config                  `yaml:"revalidate"`
	HTTP           source.HTTPConfig                  `yaml:"http"`
	File           source.FileConfig                  `yaml:"file"`
	GCS            source.GCSConfig                   `yaml:"gcs"`
	Redis          source.RedisConfig                 `yaml:"redis"`
	Firestore      source.FirestoreConfig             `yaml:"firestore"`
	BigQuery       source.BigQueryConfig              `yaml:"bigquery"`
	Invalidation   *invalidation.PubsubListenerConfig `yaml:"invalidation"`
	ServePath      string                             `yaml:"serve_path"`
	ShutdownPeriod time.Duration                      `yaml:"shutdown_period"`
}

// LoadConfig builds a Config from v. Freshness settings shared by every
// source (max_age, must_revalidate) are copied into the selected source.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BaseConfig: microservice.BaseConfig{
			LogLevel:        v.GetString("log_level"),
			HTTPPort:        v.GetString("listen"),
			ProjectID:       v.GetString("project"),
			CredentialsFile: v.GetString("credentials_file"),
			ServiceName:     v.GetString("name"),
		},
		Source: strings.ToLower(v.GetString("source")),
		Revalidate: revalidate.Config{
			Name:          v.GetString("name"),
			RetryInterval: v.GetDuration("retry_interval"),
		},
		ServePath:      v.GetString("serve_path"),
		ShutdownPeriod: v.GetDuration("shutdown_period"),
	}
	if cfg.ServePath == "" {
		cfg.ServePath = "/"
	}
	if cfg.ShutdownPeriod <= 0 {
		cfg.ShutdownPeriod = 10 * time.Second
	}

	maxAge := v.GetDuration("max_age")
	mustRevalidate := v.GetBool("must_revalidate")

	switch cfg.Source {
	case SourceHTTP:
		cfg.HTTP = source.HTTPConfig{
			URL:        v.GetString("url"),
			Headers:    v.GetStringMapString("headers"),
			Timeout:    v.GetDuration("timeout"),
			MaxRetries: v.GetInt("max_retries"),
			RetryWait:  v.GetDuration("retry_wait"),
		}
		if cfg.HTTP.URL == "" {
			return nil, errors.New("url is required for the http source")
		}
	case SourceFile:
		cfg.File = source.FileConfig{
			Path:           v.GetString("path"),
			ContentType:    v.GetString("content_type"),
			MaxAge:         maxAge,
			MustRevalidate: mustRevalidate,
		}
		if cfg.File.Path == "" {
			return nil, errors.New("path is required for the file source")
		}
	case SourceGCS:
		cfg.GCS = source.GCSConfig{
			BucketName:      v.GetString("bucket"),
			ObjectName:      v.GetString("object"),
			CredentialsFile: cfg.CredentialsFile,
			ContentType:     v.GetString("content_type"),
			MaxAge:          maxAge,
			MustRevalidate:  mustRevalidate,
		}
		if cfg.GCS.BucketName == "" || cfg.GCS.ObjectName == "" {
			return nil, errors.New("bucket and object are required for the gcs source")
		}
	case SourceRedis:
		cfg.Redis = source.RedisConfig{
			Addr:           v.GetString("redis_addr"),
			Password:       v.GetString("redis_password"),
			DB:             v.GetInt("redis_db"),
			Key:            v.GetString("key"),
			ContentType:    v.GetString("content_type"),
			MaxAge:         maxAge,
			MustRevalidate: mustRevalidate,
		}
		if cfg.Redis.Addr == "" || cfg.Redis.Key == "" {
			return nil, errors.New("redis_addr and key are required for the redis source")
		}
	case SourceFirestore:
		cfg.Firestore = source.FirestoreConfig{
			ProjectID:       cfg.ProjectID,
			CollectionName:  v.GetString("collection"),
			DocumentID:      v.GetString("document"),
			CredentialsFile: cfg.CredentialsFile,
			MaxAge:          maxAge,
			MustRevalidate:  mustRevalidate,
		}
		if cfg.ProjectID == "" || cfg.Firestore.CollectionName == "" || cfg.Firestore.DocumentID == "" {
			return nil, errors.New("project, collection and document are required for the firestore source")
		}
	case SourceBigQuery:
		cfg.BigQuery = source.BigQueryConfig{
			ProjectID:       cfg.ProjectID,
			CredentialsFile: cfg.CredentialsFile,
			Query:           v.GetString("query"),
			MaxAge:          maxAge,
			MustRevalidate:  mustRevalidate,
		}
		if cfg.ProjectID == "" || cfg.BigQuery.Query == "" {
			return nil, errors.New("project and query are required for the bigquery source")
		}
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	if sub := v.GetString("pubsub_subscription"); sub != "" {
		if cfg.ProjectID == "" {
			return nil, errors.New("project is required for pubsub_subscription")
		}
		cfg.Invalidation = invalidation.LoadDefaultPubsubListenerConfig(sub)
		cfg.Invalidation.ProjectID = cfg.ProjectID
		cfg.Invalidation.CredentialsFile = cfg.CredentialsFile
	}

	return cfg, nil
}
