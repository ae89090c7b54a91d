package backup

// The openssl invocations on the backup and restore sides must agree
// byte for byte, or archives written today stop decrypting tomorrow.
// Both sides build their argument lists here.

const opensslIterations = "100000"

func encryptArgs(password string) []string {
	return []string{
		"enc", "-aes-256-cbc", "-salt", "-pbkdf2",
		"-iter", opensslIterations,
		"-pass", "pass:" + password,
	}
}

// decryptArgs mirrors encryptArgs. When inFile is empty openssl reads
// the ciphertext from stdin.
func decryptArgs(password, inFile string) []string {
	args := []string{
		"enc", "-d", "-aes-256-cbc", "-salt", "-pbkdf2",
		"-iter", opensslIterations,
		"-pass", "pass:" + password,
	}
	if inFile != "" {
		args = append(args, "-in", inFile)
	}
	return args
}
