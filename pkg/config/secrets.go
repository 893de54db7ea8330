package config

import (
	"github.com/betbot/hedgex/pkg/secretstore"
)

// 凭证在 secretstore 中的键名
const (
	SecretEdgeXAccountID = "edgex.account_id"
	SecretEdgeXStarkKey  = "edgex.stark_private_key"
	SecretAsterAPIKey    = "aster.api_key"
	SecretAsterAPISecret = "aster.api_secret"
)

// FillSecrets 用加密 KV 库补全缺失的凭证字段。
// 只填空位：环境变量或配置文件已给出的值不会被覆盖。
func (c *Config) FillSecrets(store *secretstore.Store) error {
	fill := func(dst *string, key string) error {
		if *dst != "" {
			return nil
		}
		val, ok, err := store.GetString(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = val
		}
		return nil
	}

	if err := fill(&c.EdgeX.AccountID, SecretEdgeXAccountID); err != nil {
		return err
	}
	if err := fill(&c.EdgeX.StarkPrivate, SecretEdgeXStarkKey); err != nil {
		return err
	}
	if err := fill(&c.Aster.APIKey, SecretAsterAPIKey); err != nil {
		return err
	}
	return fill(&c.Aster.APISecret, SecretAsterAPISecret)
}
