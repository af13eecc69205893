package persistence

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NewMongoDb builds a client from discrete settings. MONGO_URI, when set,
// wins over them.
func NewMongoDb(host, port, user, password, name string) (*mongo.Client, error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		if host == "" {
			return nil, fmt.Errorf("mongo host not configured")
		}
		u := url.URL{Scheme: "mongodb", Host: host, Path: "/" + name}
		if port != "" {
			u.Host = host + ":" + port
		}
		if user != "" {
			u.User = url.UserPassword(user, password)
			u.RawQuery = "authSource=admin"
		}
		uri = u.String()
	}
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)
	return mongo.Connect(opts)
}
