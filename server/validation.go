package server

// Идентификатор записи длиннее не бывает
const maxHashLength = 128

// isValidHash проверяет идентификатор записи кеша: непустой, не длиннее
// maxHashLength, только латинские буквы, цифры, "-" и "_"
func isValidHash(hash string) bool {
	if hash == "" || len(hash) > maxHashLength {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
