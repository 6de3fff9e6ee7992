package main

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/netinventory/core/csql"
	"github.com/relabs-tech/netinventory/core/filestore"
	"github.com/relabs-tech/netinventory/core/logger"
	"github.com/relabs-tech/netinventory/inventory"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,default=" description:"password to the Postgres DB"`
	JWTSecret        string `env:"JWT_SECRET,default=" description:"the secret session tokens are signed with"`
	Port             string `env:"PORT,default=3000" description:"the port to listen on"`
	UploadsDir       string `env:"UPLOADS_DIR,default=uploads" description:"directory for topology images with the local file store"`
	S3AccessID       string `env:"S3_ACCESS_ID,default=" description:"access id for the S3 file store"`
	S3AccessKey      string `env:"S3_ACCESS_KEY,default=" description:"access key for the S3 file store"`
	S3Region         string `env:"S3_REGION,default=" description:"region of the S3 file store"`
	S3Bucket         string `env:"S3_BUCKET,default=" description:"bucket name of the S3 file store, enables S3 when set"`
	S3KeyPrefix      string `env:"S3_KEY_PREFIX,default=" description:"key prefix inside the S3 bucket"`
}

func main() {
	logger.InitLogger(logrus.InfoLevel)

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	if len(service.JWTSecret) == 0 {
		service.JWTSecret = "fallback_secret_key"
		logger.Default().Warnln("JWT_SECRET not set, using the insecure fallback secret")
	}

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, "")
	defer db.Close()

	router := mux.NewRouter()

	var files filestore.Driver
	if len(service.S3Bucket) > 0 {
		s3, err := filestore.NewS3(filestore.S3Configuration{
			AccessID:      service.S3AccessID,
			AccessKey:     service.S3AccessKey,
			AWSRegion:     service.S3Region,
			AWSBucketName: service.S3Bucket,
			KeyPrefix:     service.S3KeyPrefix,
		})
		if err != nil {
			panic(err)
		}
		files = s3
	} else {
		local, err := filestore.NewLocalFilesystem(filestore.LocalConfiguration{
			BasePath:   service.UploadsDir,
			PublicPath: "/uploads",
		})
		if err != nil {
			panic(err)
		}
		files = local
		router.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(local.BasePath()))))
	}

	inventory.New(&inventory.Builder{
		DB:        db,
		Router:    router,
		JWTSecret: service.JWTSecret,
		FileStore: files,
	})

	handler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
	)(router)

	logger.Default().Infoln("listen on port :" + service.Port)
	http.ListenAndServe(":"+service.Port, handler)
}
