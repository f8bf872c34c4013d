package pipelineconfig

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Load reads a YAML file and returns Config with raw bytes
// KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read pipeline config: %w", err)
	}
	return Parse(data)
}

// LoadDefault returns the embedded default rule set
func LoadDefault() (*Config, []byte, error) {
	return Parse(defaultYAML)
}

// LoadOrDefault loads path, or the embedded default when path is empty
func LoadOrDefault(path string) (*Config, []byte, error) {
	if path == "" {
		return LoadDefault()
	}
	return Load(path)
}

// Parse decodes and validates YAML bytes
func Parse(data []byte) (*Config, []byte, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil {
		return nil, nil, fmt.Errorf("decode pipeline config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, data, err
	}

	return &cfg, data, nil
}

// Hash generates SHA256 hash from Config (canonical JSON)
// json.Marshal은 map 키를 정렬하므로 재현 가능
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
