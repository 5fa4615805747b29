package api

import "strconv"

func parseExecutionID(raw string) (int, error) {
	return strconv.Atoi(raw)
}
