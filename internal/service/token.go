package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// sessionClaims 是重连令牌携带的声明。
type sessionClaims struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	jwt.RegisteredClaims
}

// TokenService 签发和校验重连会话令牌。
//
// 加入/创建房间的响应携带一个绑定 playerID+roomCode 的 HS256 令牌，
// 重连时必须出示，防止仅凭猜测的 playerID 抢占别人的座位。
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService 创建 TokenService 实例。expiry 通常等于房间 TTL。
func NewTokenService(secret string, expiry time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("token service: secret cannot be empty")
	}
	if expiry <= 0 {
		expiry = 2 * time.Hour
	}
	return &TokenService{secret: []byte(secret), expiry: expiry}, nil
}

// Issue 为指定房间的指定玩家签发令牌。
func (s *TokenService) Issue(roomCode string, playerID string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RoomCode: roomCode,
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token service: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify 校验令牌并返回其中的房间码与玩家 ID。
// 签名无效、过期、或算法不符都返回 ErrInvalidToken。
func (s *TokenService) Verify(tokenStr string) (roomCode string, playerID string, err error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.RoomCode == "" || claims.PlayerID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.RoomCode, claims.PlayerID, nil
}
