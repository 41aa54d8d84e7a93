package decode

import (
	"encoding/json"
	"testing"
)

type roomConf struct {
	Title     string   `json:"title"`
	MaxMember int      `json:"maxMember"`
	Password  *string  `json:"password,omitempty"`
	Blacklist []string `json:"blackList"`
	AutoClose bool     `json:"autoClose"`
}

func TestDecodeRaw(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"title":"hall","maxMember":8,"password":"pw","blackList":["u9"],"autoClose":true}`)
	conf, err := DecodeRaw[roomConf](raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conf.Title != "hall" || conf.MaxMember != 8 || !conf.AutoClose {
		t.Fatalf("unexpected conf %+v", conf)
	}
	if conf.Password == nil || *conf.Password != "pw" {
		t.Fatal("password not decoded")
	}
	if len(conf.Blacklist) != 1 || conf.Blacklist[0] != "u9" {
		t.Fatalf("blacklist %v", conf.Blacklist)
	}
}

func TestDecodeRawWeakTyping(t *testing.T) {
	t.Parallel()

	// 客户端把数字当字符串发也能解
	conf, err := DecodeRaw[roomConf](json.RawMessage(`{"maxMember":"16"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conf.MaxMember != 16 {
		t.Fatalf("maxMember = %d", conf.MaxMember)
	}
}

func TestDecodeRawOmittedFields(t *testing.T) {
	t.Parallel()

	conf, err := DecodeRaw[roomConf](json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conf.MaxMember != 0 || conf.Password != nil || conf.AutoClose {
		t.Fatalf("zero values expected, got %+v", conf)
	}
}

func TestDecodeRawInvalid(t *testing.T) {
	t.Parallel()

	if _, err := DecodeRaw[roomConf](nil); err == nil {
		t.Fatal("empty input must fail")
	}
	if _, err := DecodeRaw[roomConf](json.RawMessage(`"not an object"`)); err == nil {
		t.Fatal("non-object must fail")
	}
}
