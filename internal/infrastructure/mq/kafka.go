package mq

import (
	"log"

	"creditpay/internal/config"

	"github.com/IBM/sarama"
)

// Producer 消息投递的最小接口，发件箱任务依赖它而不是具体客户端
type Producer interface {
	Send(topic, key, value string) error
}

// KafkaProducer 基于 sarama 同步生产者的实现
type KafkaProducer struct {
	producer sarama.SyncProducer
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) *KafkaProducer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	log.Println("Kafka 生产者创建成功")
	return &KafkaProducer{producer: producer}
}

// Send 发送消息到 Kafka
func (p *KafkaProducer) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭生产者
func (p *KafkaProducer) Close() {
	if p.producer != nil {
		p.producer.Close()
	}
}
