package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/Alcereo/edgegate/pkg/crypt"
	"github.com/patrickmn/go-cache"
)

const (
	StateCookieName    = "uai_oauth_state"
	VerifierCookieName = "uai_oauth_verifier"
	NextCookieName     = "uai_oauth_next"
	FromCookieName     = "uai_oauth_from"

	TransactionTTL = 10 * time.Minute
)

var transactionCookieNames = []string{
	StateCookieName,
	VerifierCookieName,
	NextCookieName,
	FromCookieName,
}

// Transaction is the state of one OAuth sign-in between kick-off and
// callback.
type Transaction struct {
	State    string
	Verifier string
	Next     string
	From     string
}

type TransactionStore interface {
	Save(writer http.ResponseWriter, request *http.Request, transaction *Transaction) error
	// Load returns the pending transaction of the browser, or nil.
	Load(request *http.Request) *Transaction
	// Clear forgets the transaction. All transaction cookies are expired.
	Clear(writer http.ResponseWriter, request *http.Request)
}

func setTransactionCookie(writer http.ResponseWriter, secure bool, name string, value string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(TransactionTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTransactionCookies(writer http.ResponseWriter, secure bool) {
	for _, name := range transactionCookieNames {
		http.SetCookie(writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(request *http.Request, name string) string {
	cookie, err := request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Cookie store

type cookieTransactionStore struct {
	secure    func(request *http.Request) bool
	encryptor *crypt.Encryptor
}

func NewCookieTransactionStore(secure func(request *http.Request) bool) *cookieTransactionStore {
	return &cookieTransactionStore{secure: secure}
}

// NewSealedCookieTransactionStore keeps the verifier cookie encrypted, so
// the browser never holds it in clear text.
func NewSealedCookieTransactionStore(secure func(request *http.Request) bool, encryptor *crypt.Encryptor) *cookieTransactionStore {
	return &cookieTransactionStore{secure: secure, encryptor: encryptor}
}

func (store *cookieTransactionStore) Save(writer http.ResponseWriter, request *http.Request, transaction *Transaction) error {
	verifier := transaction.Verifier
	if store.encryptor != nil {
		sealed, err := store.encryptor.EncryptFact(verifier)
		if err != nil {
			return newErr("Saving oauth transaction error.", err)
		}
		verifier = sealed
	}
	secure := store.secure(request)
	setTransactionCookie(writer, secure, StateCookieName, transaction.State)
	setTransactionCookie(writer, secure, VerifierCookieName, verifier)
	setTransactionCookie(writer, secure, NextCookieName, transaction.Next)
	setTransactionCookie(writer, secure, FromCookieName, transaction.From)
	return nil
}

func (store *cookieTransactionStore) Load(request *http.Request) *Transaction {
	state := cookieValue(request, StateCookieName)
	if state == "" {
		return nil
	}
	return &Transaction{
		State:    state,
		Verifier: store.verifier(request),
		Next:     cookieValue(request, NextCookieName),
		From:     cookieValue(request, FromCookieName),
	}
}

// verifier is empty when the sealed cookie does not open; the callback then
// fails closed.
func (store *cookieTransactionStore) verifier(request *http.Request) string {
	value := cookieValue(request, VerifierCookieName)
	if store.encryptor == nil || value == "" {
		return value
	}
	verifier, err := store.encryptor.DecryptFact(value)
	if err != nil {
		return ""
	}
	return verifier
}

func (store *cookieTransactionStore) Clear(writer http.ResponseWriter, request *http.Request) {
	clearTransactionCookies(writer, store.secure(request))
}

// Memory store. Only the state travels in a cookie; the verifier never
// leaves the server.

type memoryTransactionStore struct {
	secure       func(request *http.Request) bool
	transactions *cache.Cache
	consume      sync.Mutex
}

func NewMemoryTransactionStore(secure func(request *http.Request) bool) *memoryTransactionStore {
	return &memoryTransactionStore{
		secure:       secure,
		transactions: cache.New(TransactionTTL, TransactionTTL),
	}
}

func (store *memoryTransactionStore) Save(writer http.ResponseWriter, request *http.Request, transaction *Transaction) error {
	if transaction.State == "" {
		return newErr("Saving oauth transaction error.", "empty state")
	}
	saved := *transaction
	if err := store.transactions.Add(transaction.State, &saved, cache.DefaultExpiration); err != nil {
		return newErr("Saving oauth transaction error.", err)
	}
	setTransactionCookie(writer, store.secure(request), StateCookieName, transaction.State)
	return nil
}

func (store *memoryTransactionStore) Load(request *http.Request) *Transaction {
	state := cookieValue(request, StateCookieName)
	if state == "" {
		return nil
	}
	store.consume.Lock()
	value, found := store.transactions.Get(state)
	store.transactions.Delete(state)
	store.consume.Unlock()
	if !found {
		return nil
	}
	transaction := *value.(*Transaction)
	return &transaction
}

func (store *memoryTransactionStore) Clear(writer http.ResponseWriter, request *http.Request) {
	if state := cookieValue(request, StateCookieName); state != "" {
		store.transactions.Delete(state)
	}
	clearTransactionCookies(writer, store.secure(request))
}
