package filestore

// Package filestore provides functionality to store uploaded files outside
// of the database. There are two possible backends: a local file system
// and AWS S3.

// Driver defines the interface for the upload storage
type Driver interface {
	// Put stores data under key, overwriting any previous content.
	Put(key string, contentType string, data []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key string) error
	// URL returns a URL under which the key can be fetched by a browser.
	// The URL defeats browser caching: the local driver appends a
	// timestamp query parameter, the S3 driver presigns a fresh URL on
	// every call.
	URL(key string) (string, error)
}

// DriverType represents the different types of storage drivers
type DriverType string

// DriverTypeLocal is the local filesystem implementation
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 implementation
const DriverTypeAWSS3 DriverType = "AWSS3"

// Configuration contains the configuration for the upload storage
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration contains the configuration for the local filesystem driver
type LocalConfiguration struct {
	// BasePath is the directory files are written to
	BasePath string
	// PublicPath is the URL path prefix the directory is served under
	PublicPath string
}

// S3Configuration contains the configuration for the AWS S3 driver
type S3Configuration struct {
	AccessID      string
	AccessKey     string
	AWSRegion     string
	AWSBucketName string
	KeyPrefix     string
}
