package store_test

import "github.com/kiranshivaraju/contractsentinel/internal/config"

func configFor(driver, url string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:        driver,
		URL:           url,
		MaxOpenConns:  5,
		MaxIdleConns:  1,
		MigrationsDir: migrationsDir(),
	}
}
