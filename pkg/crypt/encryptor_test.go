package crypt

import (
	"testing"

	"github.com/onsi/gomega"
	uuid "github.com/satori/go.uuid"
)

func TestEncryptor_DecryptFact(t *testing.T) {
	g := gomega.NewWithT(t)

	encryptor := NewEncryptor("some-private-key")

	expectedFact := uuid.NewV4().String()
	encryptedFact, err := encryptor.EncryptFact(expectedFact)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(encryptedFact).NotTo(gomega.ContainSubstring(expectedFact))

	actualFact, err := encryptor.DecryptFact(encryptedFact)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(actualFact).To(gomega.Equal(expectedFact))
}

func TestEncryptor_FreshNonceEachTime(t *testing.T) {
	g := gomega.NewWithT(t)
	encryptor := NewEncryptor("some-private-key")

	first, err := encryptor.EncryptFact("verifier")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	second, err := encryptor.EncryptFact("verifier")
	g.Expect(err).NotTo(gomega.HaveOccurred())

	g.Expect(first).NotTo(gomega.Equal(second))
}

func TestEncryptor_RejectsForeignValues(t *testing.T) {
	g := gomega.NewWithT(t)
	encryptor := NewEncryptor("some-private-key")

	sealed, err := NewEncryptor("another-key").EncryptFact("verifier")
	g.Expect(err).NotTo(gomega.HaveOccurred())

	_, err = encryptor.DecryptFact(sealed)
	g.Expect(err).To(gomega.HaveOccurred())

	_, err = encryptor.DecryptFact("c2hvcnQ")
	g.Expect(err).To(gomega.HaveOccurred())

	_, err = encryptor.DecryptFact("not base64 !")
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestNewEncryptor_RequiresKey(t *testing.T) {
	g := gomega.NewWithT(t)
	g.Expect(func() { NewEncryptor("") }).To(gomega.Panic())
}
