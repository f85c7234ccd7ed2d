package translate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaiduBaseURL = "https://fanyi-api.baidu.com"

// BaiduOption configures the Baidu translate client.
type BaiduOption func(*baiduClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) BaiduOption {
	return func(c *baiduClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) BaiduOption {
	return func(c *baiduClient) {
		c.http = hc
	}
}

type baiduClient struct {
	appID   string
	secret  string
	baseURL string
	http    *http.Client
}

// NewBaidu creates a Translator backed by the Baidu general translation API.
func NewBaidu(appID, secret string, opts ...BaiduOption) Translator {
	c := &baiduClient{
		appID:   appID,
		secret:  secret,
		baseURL: defaultBaiduBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type baiduResponse struct {
	ErrorCode   string `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
	TransResult []struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	} `json:"trans_result"`
}

func (c *baiduClient) ToChinese(ctx context.Context, word string) (string, error) {
	salt := strconv.Itoa(rand.Intn(32768) + 32768)
	sum := md5.Sum([]byte(c.appID + word + salt + c.secret))

	params := url.Values{}
	params.Set("q", word)
	params.Set("from", "en")
	params.Set("to", "zh")
	params.Set("appid", c.appID)
	params.Set("salt", salt)
	params.Set("sign", hex.EncodeToString(sum[:]))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/trans/vip/translate?"+params.Encode(), nil)
	if err != nil {
		return "", eris.Wrap(err, "translate: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "translate: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "translate: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("translate: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result baiduResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "translate: unmarshal response")
	}
	if result.ErrorCode != "" && result.ErrorCode != "52000" {
		return "", eris.Errorf("translate: api error %s: %s", result.ErrorCode, result.ErrorMsg)
	}
	if len(result.TransResult) == 0 {
		return word, nil
	}
	return result.TransResult[0].Dst, nil
}
