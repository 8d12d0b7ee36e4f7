// Copyright 2025 Citadel Team
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
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/go-citadel/citadel/internal/pkg/delegate"
	"github.com/go-citadel/citadel/pkg/cache"
	"github.com/go-citadel/citadel/pkg/database"
	httpx "github.com/go-citadel/citadel/pkg/http"
	"github.com/go-citadel/citadel/pkg/log"
)

type AppConfig struct {
	Log      log.Conf
	Http     httpx.Http
	Database database.Database
	Redis    cache.Redis
	Delegate delegate.Conf
	Queue    QueueConf
	Secret   SecretConf
}

type QueueConf struct {
	MaxRetry        int
	ShutdownTimeout int
}

type SecretConf struct {
	// MasterKey is the base64 encoded 32 byte key local encryption wraps
	// data keys with.
	MasterKey string
}

// DecodeMasterKey returns the raw local master key bytes.
func (s SecretConf) DecodeMasterKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret master key: %w", err)
	}
	return key, nil
}

var (
	cfg  AppConfig
	once sync.Once
)

func NewConf(confDir string) AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confDir)
		if err != nil {
			panic(fmt.Sprintf("load conf file error: %s", err))
		}
	})
	return cfg
}

// LoadConfigFile load conf file
func LoadConfigFile(confDir string) (AppConfig, error) {

	config := viper.New()
	config.SetConfigFile(confDir)
	config.AddConfigPath("./conf.d")
	config.SetConfigName("config")
	config.SetConfigType("toml")
	if err := config.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration file: %v", err)
	}

	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		log.Infof("configuration changed, reloading: %s", e.Name)
		if err := config.Unmarshal(&cfg); err != nil {
			log.Errorf("failed to unmarshal configuration file: %v", err)
		}
	})
	if err := config.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}
	fmt.Printf("[Init] config file path: %s\n", confDir)

	return cfg, nil
}

func GetString(key string) string {
	return viper.GetString(key)
}
