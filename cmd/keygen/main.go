// keygen prints a fresh PEM-encoded signing key pair for JWT_PRIVATE_KEY and
// JWT_PUBLIC_KEY. Defaults to RSA 2048; -alg ec emits an ECDSA P-256 pair.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"log"
	"os"
)

func main() {
	alg := flag.String("alg", "rsa", "Key algorithm: rsa or ec")
	bits := flag.Int("bits", 2048, "RSA key size in bits")
	flag.Parse()

	var (
		private any
		public  any
	)
	switch *alg {
	case "rsa":
		key, err := rsa.GenerateKey(rand.Reader, *bits)
		if err != nil {
			log.Fatalf("generate rsa: %v", err)
		}
		private, public = key, &key.PublicKey
	case "ec":
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			log.Fatalf("generate ecdsa: %v", err)
		}
		private, public = key, &key.PublicKey
	default:
		log.Fatalf("unknown algorithm %q (want rsa or ec)", *alg)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		log.Fatalf("encode private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		log.Fatalf("encode public key: %v", err)
	}

	if err := pem.Encode(os.Stdout, &pem.Block{Type: "PRIVATE KEY", Bytes: privDER}); err != nil {
		log.Fatalf("write private key: %v", err)
	}
	if err := pem.Encode(os.Stdout, &pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}); err != nil {
		log.Fatalf("write public key: %v", err)
	}
}
