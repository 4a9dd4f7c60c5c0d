package model

// Project types. Each one selects a backup strategy variant.
const (
	ProjectTypeWeb    = "web"
	ProjectTypeMySQL  = "mysql"
	ProjectTypeSQLite = "sqlite"
)

// ProjectTypes lists every supported project type.
var ProjectTypes = []string{ProjectTypeWeb, ProjectTypeMySQL, ProjectTypeSQLite}

// Offsite storage kinds.
const (
	StorageKindSSH = "ssh"
	StorageKindS3  = "s3"
)

// Project is the per-project backup configuration supplied by the config loader.
type Project struct {
	ID             string            `yaml:"id" json:"id" validate:"required,slug"`
	Type           string            `yaml:"type" json:"type" validate:"required"`
	Source         string            `yaml:"source" json:"source" validate:"required"`
	LocalRoot      string            `yaml:"local_root" json:"local_root" validate:"required"`
	Offsite        StorageDescriptor `yaml:"offsite" json:"offsite"`
	RetentionYears int               `yaml:"retention_years" json:"retention_years" validate:"min=1,max=100"`
	Encrypted      bool              `yaml:"encrypted" json:"encrypted"`
	KeyRef         string            `yaml:"key_ref" json:"key_ref,omitempty" validate:"required_if=Encrypted true"`
}

// StorageDescriptor describes an offsite destination.
type StorageDescriptor struct {
	Kind           string `yaml:"kind" json:"kind" validate:"required,oneof=ssh s3"`
	Host           string `yaml:"host" json:"host,omitempty" validate:"required_if=Kind ssh"`
	Port           int    `yaml:"port" json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User           string `yaml:"user" json:"user,omitempty" validate:"required_if=Kind ssh"`
	KeyFile        string `yaml:"key_file" json:"key_file,omitempty"`
	Password       string `yaml:"password" json:"-"`
	KnownHostsFile string `yaml:"known_hosts_file" json:"known_hosts_file,omitempty" validate:"required_if=Kind ssh"`
	Path           string `yaml:"path" json:"path,omitempty"`
	Bucket         string `yaml:"bucket" json:"bucket,omitempty" validate:"required_if=Kind s3"`
	Endpoint       string `yaml:"endpoint" json:"endpoint,omitempty"`
	Region         string `yaml:"region" json:"region,omitempty"`
	AccessKey      string `yaml:"access_key" json:"access_key,omitempty"`
	SecretKey      string `yaml:"secret_key" json:"-"`
}
