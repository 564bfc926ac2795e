package icrypto

import "github.com/jmcleod/tokenkeeper/internal/util"

const namespaceKeyInfo = "tokenkeeper:namespace-key:v1"

// DeriveNamespaceKey binds a wrapping key to one credential namespace.
func DeriveNamespaceKey(wrappingKey []byte, namespace string) ([]byte, error) {
	return util.HKDF(wrappingKey, []byte(namespace), []byte(namespaceKeyInfo))
}
