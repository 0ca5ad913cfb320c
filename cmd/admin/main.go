package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"jobassist/internal/auth"
	"jobassist/internal/config"
	"jobassist/internal/database"
)

func main() {
	var (
		email         = flag.String("email", "", "目标用户邮箱（必填）")
		plan          = flag.String("plan", "", "设置订阅等级：FREE / BASIC / PREMIUM（可选）")
		resetPassword = flag.Bool("reset-password", false, "为该用户生成新的随机密码（可选）")
		dbHost        = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort        = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName        = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser        = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass        = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode       = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	_ = godotenv.Load()

	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" {
		log.Fatal("missing required flag: --email")
	}
	newPlan := database.Plan(strings.ToUpper(strings.TrimSpace(*plan)))
	if newPlan != "" && !newPlan.Valid() {
		log.Fatalf("unknown plan %q (want FREE, BASIC or PREMIUM)", *plan)
	}
	if newPlan == "" && !*resetPassword {
		log.Fatal("nothing to do: pass --plan and/or --reset-password")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	var user database.User
	switch err := db.Where("email = ?", addr).First(&user).Error; {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Fatalf("user %q not found", addr)
	default:
		log.Fatalf("query user: %v", err)
	}

	updates := map[string]any{}
	if newPlan != "" {
		updates["plan"] = newPlan
	}

	var password string
	if *resetPassword {
		password, err = generateRandomPassword(24)
		if err != nil {
			log.Fatalf("generate password: %v", err)
		}
		hashed, err := auth.HashPassword(password)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		updates["password_hash"] = hashed
	}

	if err := db.Model(&user).Updates(updates).Error; err != nil {
		log.Fatalf("update user: %v", err)
	}

	fmt.Printf("已更新用户：%s (id=%d)\n", user.Email, user.ID)
	if newPlan != "" {
		fmt.Printf("订阅等级: %s\n", newPlan)
	}
	if password != "" {
		fmt.Printf("新密码: %s\n", password)
		fmt.Printf("提示：该密码仅显示一次，请尽快转交用户。\n")
	}
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("DB_NAME")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("DB_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("DB_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
