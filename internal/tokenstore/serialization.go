package tokenstore

import "encoding/json"

func marshalAccessToken(accessToken AccessToken) (string, error) {
	serializedToken, marshalError := json.Marshal(accessToken)
	if marshalError != nil {
		return "", marshalError
	}
	return string(serializedToken), nil
}

func unmarshalAccessToken(serializedToken string) (AccessToken, error) {
	var accessToken AccessToken
	if unmarshalError := json.Unmarshal([]byte(serializedToken), &accessToken); unmarshalError != nil {
		return AccessToken{}, unmarshalError
	}
	return accessToken, nil
}
